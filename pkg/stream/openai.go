package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"kirohq/gateway/pkg/eventstream"
	"kirohq/gateway/pkg/proxy/types"
	"kirohq/gateway/pkg/reasoning"
)

// GenerateCompletionID returns a chat-completion identifier.
func GenerateCompletionID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// EmitOptions configures one emitter run, shared by both dialects.
type EmitOptions struct {
	// Model is echoed in every frame.
	Model string

	// MaxInputTokens is the context window of the resolved model, used to
	// derive totals from the context_usage percentage.
	MaxInputTokens int

	// CountCompletion counts completion tokens over the emitted text.
	CountCompletion func(text string) int

	// FallbackPrompt estimates prompt tokens when the upstream sent no
	// context_usage event. Nil leaves the prompt at zero.
	FallbackPrompt func() int

	// ReasoningMode is the thinking handling mode; as_reasoning_content
	// routes thinking to its own channel, anything else merges it into
	// regular content.
	ReasoningMode string
}

// Outcome describes a finished emitter run, for usage recording and
// truncation persistence.
type Outcome struct {
	Accounting   Accounting
	FinishReason string
	Summary      *Summary

	// Emitted reports whether at least one frame reached the client.
	// The first-token retry loop refuses to retry once it is set.
	Emitted bool
}

// EmitOpenAI converts the upstream stream into OpenAI chat.completion.chunk
// SSE frames on w. It returns ErrFirstTokenTimeout (with Outcome.Emitted
// false) when the upstream never produced a byte, so the caller can retry.
func EmitOpenAI(ctx context.Context, w http.ResponseWriter, body io.Reader, opts EmitOptions, pump PumpOptions) (*Outcome, error) {
	completionID := GenerateCompletionID()
	created := time.Now().Unix()
	out := &Outcome{}
	firstChunk := true

	writeDelta := func(delta types.Delta) error {
		if firstChunk {
			delta.Role = "assistant"
			firstChunk = false
		}
		chunk := &types.ChatCompletionStreamChunk{
			ID:      completionID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   opts.Model,
			Choices: []types.StreamChoice{{Index: 0, Delta: delta}},
		}
		if err := writeData(w, chunk); err != nil {
			return err
		}
		out.Emitted = true
		return nil
	}

	var toolCalls []eventstream.ToolCall
	sum, err := Pump(ctx, body, pump, func(ev Event) error {
		switch ev.Kind {
		case KindContent:
			return writeDelta(types.Delta{Content: ev.Content})
		case KindThinking:
			if opts.ReasoningMode == reasoning.ModeAsReasoningContent {
				return writeDelta(types.Delta{ReasoningContent: ev.Content})
			}
			return writeDelta(types.Delta{Content: ev.Content})
		case KindToolUse:
			toolCalls = append(toolCalls, *ev.ToolCall)
		}
		return nil
	})
	out.Summary = sum
	if err != nil {
		// Best-effort terminal marker once bytes have reached the client.
		// A cancelled context means the client went away; write nothing.
		if out.Emitted && !errors.Is(err, ErrFirstTokenTimeout) && ctx.Err() == nil {
			_ = writeDone(w)
		}
		return out, err
	}

	if len(toolCalls) > 0 {
		if err := writeDelta(types.Delta{ToolCalls: indexedToolCalls(toolCalls)}); err != nil {
			return out, err
		}
	}

	out.FinishReason = "stop"
	if len(toolCalls) > 0 {
		out.FinishReason = "tool_calls"
	}

	completion := 0
	if opts.CountCompletion != nil {
		completion = opts.CountCompletion(sum.Content + sum.ThinkingContent)
	}
	out.Accounting = AccountTokens(sum.ContextUsagePercentage, completion, opts.MaxInputTokens, opts.FallbackPrompt)

	usage := &types.Usage{
		PromptTokens:     out.Accounting.PromptTokens,
		CompletionTokens: out.Accounting.CompletionTokens,
		TotalTokens:      out.Accounting.TotalTokens,
		CreditsUsed:      sum.Credits,
	}
	finish := out.FinishReason
	final := &types.ChatCompletionStreamChunk{
		ID:      completionID,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   opts.Model,
		Choices: []types.StreamChoice{{Index: 0, FinishReason: &finish}},
		Usage:   usage,
	}
	if err := writeData(w, final); err != nil {
		return out, err
	}
	out.Emitted = true

	return out, writeDone(w)
}

// CollectOpenAI consumes the whole stream and builds a non-streaming
// chat.completion response.
func CollectOpenAI(ctx context.Context, body io.Reader, opts EmitOptions, pump PumpOptions) (*types.ChatCompletionResponse, *Outcome, error) {
	out := &Outcome{}
	sum, err := Pump(ctx, body, pump, nil)
	out.Summary = sum
	if err != nil {
		return nil, out, err
	}

	out.FinishReason = "stop"
	if len(sum.ToolCalls) > 0 {
		out.FinishReason = "tool_calls"
	}

	completion := 0
	if opts.CountCompletion != nil {
		completion = opts.CountCompletion(sum.Content + sum.ThinkingContent)
	}
	out.Accounting = AccountTokens(sum.ContextUsagePercentage, completion, opts.MaxInputTokens, opts.FallbackPrompt)

	msg := types.Message{
		Role:    "assistant",
		Content: sum.Content,
	}
	if opts.ReasoningMode == reasoning.ModeAsReasoningContent {
		msg.ReasoningContent = sum.ThinkingContent
	} else if sum.ThinkingContent != "" {
		msg.Content = sum.ThinkingContent + sum.Content
	}
	if len(sum.ToolCalls) > 0 {
		msg.ToolCalls = plainToolCalls(sum.ToolCalls)
	}

	resp := &types.ChatCompletionResponse{
		ID:      GenerateCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   opts.Model,
		Choices: []types.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: out.FinishReason,
		}},
		Usage: types.Usage{
			PromptTokens:     out.Accounting.PromptTokens,
			CompletionTokens: out.Accounting.CompletionTokens,
			TotalTokens:      out.Accounting.TotalTokens,
			CreditsUsed:      sum.Credits,
		},
	}
	return resp, out, nil
}

// indexedToolCalls converts assembled tool calls to the streaming delta
// shape, assigning the index each call requires.
func indexedToolCalls(calls []eventstream.ToolCall) []types.ToolCall {
	out := make([]types.ToolCall, len(calls))
	for i, tc := range calls {
		idx := i
		args := tc.Arguments
		if args == "" {
			args = "{}"
		}
		out[i] = types.ToolCall{
			ID:    tc.ID,
			Type:  "function",
			Index: &idx,
			Function: types.FunctionCall{
				Name:      tc.Name,
				Arguments: args,
			},
		}
	}
	return out
}

// plainToolCalls converts assembled tool calls to the non-streaming shape.
func plainToolCalls(calls []eventstream.ToolCall) []types.ToolCall {
	out := make([]types.ToolCall, len(calls))
	for i, tc := range calls {
		args := tc.Arguments
		if args == "" {
			args = "{}"
		}
		out[i] = types.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: types.FunctionCall{
				Name:      tc.Name,
				Arguments: args,
			},
		}
	}
	return out
}

// toolInputJSON renders a tool call's arguments as a JSON object for the
// Anthropic dialect, falling back to {} when they do not parse.
func toolInputJSON(args string) json.RawMessage {
	if args == "" || !json.Valid([]byte(args)) {
		return json.RawMessage("{}")
	}
	trimmed := strings.TrimSpace(args)
	if !strings.HasPrefix(trimmed, "{") {
		return json.RawMessage("{}")
	}
	return json.RawMessage(args)
}
