package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"kirohq/gateway/pkg/convert"
	"kirohq/gateway/pkg/proxy"
	"kirohq/gateway/pkg/proxy/types"
	"kirohq/gateway/pkg/stream"
)

// Messages handles POST /v1/messages.
func (d *Deps) Messages(w http.ResponseWriter, r *http.Request) {
	var req types.MessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		proxy.WriteAnthropicError(w, http.StatusBadRequest,
			"Invalid JSON in request body: "+err.Error())
		return
	}
	if req.Model == "" {
		proxy.WriteAnthropicError(w, http.StatusBadRequest, "model: field required")
		return
	}
	if len(req.Messages) == 0 {
		proxy.WriteAnthropicError(w, http.StatusBadRequest, "messages: field required")
		return
	}
	if req.MaxTokens <= 0 {
		proxy.WriteAnthropicError(w, http.StatusBadRequest, "max_tokens: must be greater than 0")
		return
	}

	exec, err := d.prepare(r.Context(), chatParams{
		dialect:       "anthropic",
		endpoint:      "/v1/messages",
		externalModel: req.Model,
		systemPrompt:  convert.ExtractSystemPrompt(req.System),
		messages:      convert.AnthropicToUnified(req.Messages),
		tools:         convert.AnthropicToolsToUnified(req.Tools),
	})
	if err != nil {
		d.writePrepareError(w, "anthropic", err)
		return
	}
	defer exec.release()

	if req.Stream {
		d.streamAnthropic(r.Context(), w, exec)
		return
	}
	d.collectAnthropic(r.Context(), w, exec)
}

// streamAnthropic re-emits the upstream stream as Anthropic SSE events.
// Failures after the first emitted byte become a typed error event.
func (d *Deps) streamAnthropic(ctx context.Context, w http.ResponseWriter, exec *execution) {
	stream.SetSSEHeaders(w)

	var out *stream.Outcome
	err := stream.RunWithFirstTokenRetry(ctx, exec.maxRetries, exec.firstTokenTimeout,
		func(ctx context.Context) (io.ReadCloser, error) {
			return exec.client.DoStream(ctx, exec.url, exec.payload)
		},
		func(ctx context.Context, body io.ReadCloser) (bool, error) {
			o, err := stream.EmitAnthropic(ctx, w, body, exec.emitOpts, exec.pumpFor())
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
			proxy.WriteAnthropicStreamError(w, me)
		} else {
			proxy.WriteMappedError(w, "anthropic", me)
		}
		return
	}

	exec.comp.succeed(ctx, out, http.StatusOK)
}

// collectAnthropic buffers the whole stream and answers with a single
// message object.
func (d *Deps) collectAnthropic(ctx context.Context, w http.ResponseWriter, exec *execution) {
	var resp *types.MessagesResponse
	var out *stream.Outcome
	err := stream.RunWithFirstTokenRetry(ctx, exec.maxRetries, exec.firstTokenTimeout,
		func(ctx context.Context) (io.ReadCloser, error) {
			return exec.client.DoStream(ctx, exec.url, exec.payload)
		},
		func(ctx context.Context, body io.ReadCloser) (bool, error) {
			r, o, err := stream.CollectAnthropic(ctx, body, exec.emitOpts, exec.pumpFor())
			resp, out = r, o
			if errors.Is(err, stream.ErrFirstTokenTimeout) {
				d.Metrics.RecordFirstTokenRetry()
			}
			return false, err
		})
	if err != nil {
		me := proxy.MapError(err)
		exec.comp.fail(ctx, err, me.Status)
		proxy.WriteMappedError(w, "anthropic", me)
		return
	}

	exec.comp.succeed(ctx, out, http.StatusOK)
	proxy.WriteJSON(w, http.StatusOK, resp)
}
