package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"kirohq/gateway/pkg/convert"
	"kirohq/gateway/pkg/proxy"
	"kirohq/gateway/pkg/proxy/middleware"
	"kirohq/gateway/pkg/proxy/types"
	"kirohq/gateway/pkg/stream"
)

// ChatCompletions handles POST /v1/chat/completions.
func (d *Deps) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req types.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		proxy.WriteOpenAIError(w, http.StatusBadRequest, types.ErrorTypeInvalidRequest,
			"Invalid JSON in request body: "+err.Error())
		return
	}
	if req.Model == "" {
		proxy.WriteOpenAIError(w, http.StatusBadRequest, types.ErrorTypeInvalidRequest,
			"The model field is required.")
		return
	}
	if len(req.Messages) == 0 {
		proxy.WriteOpenAIError(w, http.StatusBadRequest, types.ErrorTypeInvalidRequest,
			"The messages field must contain at least one message.")
		return
	}

	systemPrompt, unified := convert.OpenAIToUnified(req.Messages)
	exec, err := d.prepare(r.Context(), chatParams{
		dialect:       "openai",
		endpoint:      "/v1/chat/completions",
		externalModel: req.Model,
		systemPrompt:  systemPrompt,
		messages:      unified,
		tools:         convert.OpenAIToolsToUnified(req.Tools),
	})
	if err != nil {
		d.writePrepareError(w, "openai", err)
		return
	}
	defer exec.release()

	if req.Stream {
		d.streamOpenAI(r.Context(), w, exec)
		return
	}
	d.collectOpenAI(r.Context(), w, exec)
}

// streamOpenAI re-emits the upstream stream as chat.completion.chunk
// SSE frames, retrying silently while no byte has reached the client.
func (d *Deps) streamOpenAI(ctx context.Context, w http.ResponseWriter, exec *execution) {
	stream.SetSSEHeaders(w)

	var out *stream.Outcome
	err := stream.RunWithFirstTokenRetry(ctx, exec.maxRetries, exec.firstTokenTimeout,
		func(ctx context.Context) (io.ReadCloser, error) {
			return exec.client.DoStream(ctx, exec.url, exec.payload)
		},
		func(ctx context.Context, body io.ReadCloser) (bool, error) {
			o, err := stream.EmitOpenAI(ctx, w, body, exec.emitOpts, exec.pumpFor())
			out = o
			if errors.Is(err, stream.ErrFirstTokenTimeout) && !o.Emitted {
				d.Metrics.RecordFirstTokenRetry()
			}
			return o.Emitted, err
		})
	if err != nil {
		me := proxy.MapError(err)
		exec.comp.fail(ctx, err, me.Status)
		if out != nil && out.Emitted {
			proxy.WriteOpenAIStreamError(w, me)
		} else {
			proxy.WriteMappedError(w, "openai", me)
		}
		return
	}

	exec.comp.succeed(ctx, out, http.StatusOK)
}

// collectOpenAI buffers the whole stream and answers with a single
// chat.completion object.
func (d *Deps) collectOpenAI(ctx context.Context, w http.ResponseWriter, exec *execution) {
	var resp *types.ChatCompletionResponse
	var out *stream.Outcome
	err := stream.RunWithFirstTokenRetry(ctx, exec.maxRetries, exec.firstTokenTimeout,
		func(ctx context.Context) (io.ReadCloser, error) {
			return exec.client.DoStream(ctx, exec.url, exec.payload)
		},
		func(ctx context.Context, body io.ReadCloser) (bool, error) {
			r, o, err := stream.CollectOpenAI(ctx, body, exec.emitOpts, exec.pumpFor())
			resp, out = r, o
			if errors.Is(err, stream.ErrFirstTokenTimeout) {
				d.Metrics.RecordFirstTokenRetry()
			}
			return false, err
		})
	if err != nil {
		me := proxy.MapError(err)
		exec.comp.fail(ctx, err, me.Status)
		proxy.WriteMappedError(w, "openai", me)
		return
	}

	exec.comp.succeed(ctx, out, http.StatusOK)
	proxy.WriteJSON(w, http.StatusOK, resp)
}

// writePrepareError answers errors from the shared front half in the
// given dialect.
func (d *Deps) writePrepareError(w http.ResponseWriter, dialect string, err error) {
	var tle *tokenLimitError
	if errors.As(err, &tle) {
		middleware.WriteLimitExceeded(w, dialect, tle.result)
		return
	}
	proxy.WriteMappedError(w, dialect, proxy.MapError(err))
}
