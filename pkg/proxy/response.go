package proxy

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"kirohq/gateway/pkg/proxy/types"
)

// WriteJSON serializes v with the given status. Encoding failures are
// logged; the status line has already been sent by then.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response", "error", err)
	}
}

// WriteOpenAIError writes an OpenAI-dialect error envelope.
func WriteOpenAIError(w http.ResponseWriter, status int, errType, message string) {
	WriteJSON(w, status, types.NewErrorResponse(errType, message))
}

// WriteAnthropicError writes an Anthropic-dialect error envelope. The
// error type is derived from the status.
func WriteAnthropicError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, types.NewAnthropicError(anthropicTypeForStatus(status), message))
}

// WriteMappedError writes a classified error in the requested dialect.
func WriteMappedError(w http.ResponseWriter, dialect string, me MappedError) {
	if dialect == "anthropic" {
		WriteAnthropicError(w, me.Status, me.Message)
		return
	}
	WriteOpenAIError(w, me.Status, me.Type, me.Message)
}

// WriteOpenAIStreamError emits a best-effort error frame on an SSE
// stream whose headers are already sent, then terminates the stream.
// OpenAI SDKs surface the error object and stop on [DONE].
func WriteOpenAIStreamError(w http.ResponseWriter, me MappedError) {
	payload, err := json.Marshal(types.NewErrorResponse(me.Type, me.Message))
	if err != nil {
		return
	}
	if _, err := w.Write(append(append([]byte("data: "), payload...), "\n\n"...)); err != nil {
		return
	}
	w.Write([]byte("data: [DONE]\n\n"))
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// WriteAnthropicStreamError emits a typed error event on an Anthropic
// SSE stream whose headers are already sent.
func WriteAnthropicStreamError(w http.ResponseWriter, me MappedError) {
	payload, err := json.Marshal(types.NewAnthropicError(anthropicTypeForStatus(me.Status), me.Message))
	if err != nil {
		return
	}
	if _, err := w.Write([]byte("event: error\n")); err != nil {
		return
	}
	w.Write(append(append([]byte("data: "), payload...), "\n\n"...))
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
