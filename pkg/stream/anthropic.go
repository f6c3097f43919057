package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"kirohq/gateway/pkg/proxy/types"
	"kirohq/gateway/pkg/reasoning"
)

// GenerateMessageID returns an Anthropic-style message identifier.
func GenerateMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24]
}

// generateThinkingSignature returns a placeholder signature for thinking
// blocks. The real API signs them cryptographically; extracted thinking
// has nothing to verify.
func generateThinkingSignature() string {
	return "sig_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// GenerateToolUseID returns an Anthropic-style tool_use identifier.
func GenerateToolUseID() string {
	return "toolu_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24]
}

// EmitAnthropic converts the upstream stream into typed Anthropic SSE
// events on w. The message_start event is held back until the upstream
// produces something, so a first-token timeout can still be retried
// without the client having seen any bytes.
func EmitAnthropic(ctx context.Context, w http.ResponseWriter, body io.Reader, opts EmitOptions, pump PumpOptions) (*Outcome, error) {
	messageID := GenerateMessageID()
	out := &Outcome{}

	initialInput := 0
	if opts.FallbackPrompt != nil {
		initialInput = opts.FallbackPrompt()
	}

	started := false
	blockIndex := 0
	thinkingOpen := false
	thinkingIdx := 0
	textOpen := false
	textIdx := 0
	toolBlocks := 0
	signature := generateThinkingSignature()

	ensureStarted := func() error {
		if started {
			return nil
		}
		err := writeEvent(w, "message_start", types.MessageStartEvent{
			Type: "message_start",
			Message: types.MessagesResponse{
				ID:      messageID,
				Type:    "message",
				Role:    "assistant",
				Model:   opts.Model,
				Content: []types.ResponseBlock{},
				Usage:   types.AnthropicUsage{InputTokens: initialInput},
			},
		})
		if err != nil {
			return err
		}
		started = true
		out.Emitted = true
		return nil
	}

	closeThinking := func() error {
		if !thinkingOpen {
			return nil
		}
		if err := writeEvent(w, "content_block_stop", types.ContentBlockStopEvent{Type: "content_block_stop", Index: thinkingIdx}); err != nil {
			return err
		}
		thinkingOpen = false
		blockIndex++
		return nil
	}

	closeText := func() error {
		if !textOpen {
			return nil
		}
		if err := writeEvent(w, "content_block_stop", types.ContentBlockStopEvent{Type: "content_block_stop", Index: textIdx}); err != nil {
			return err
		}
		textOpen = false
		blockIndex++
		return nil
	}

	writeText := func(text string) error {
		if err := ensureStarted(); err != nil {
			return err
		}
		if err := closeThinking(); err != nil {
			return err
		}
		if !textOpen {
			textIdx = blockIndex
			err := writeEvent(w, "content_block_start", types.ContentBlockStartEvent{
				Type:         "content_block_start",
				Index:        textIdx,
				ContentBlock: types.ResponseBlock{Type: "text"},
			})
			if err != nil {
				return err
			}
			textOpen = true
		}
		if text == "" {
			return nil
		}
		return writeEvent(w, "content_block_delta", types.ContentBlockDeltaEvent{
			Type:  "content_block_delta",
			Index: textIdx,
			Delta: types.BlockDelta{Type: "text_delta", Text: text},
		})
	}

	sum, err := Pump(ctx, body, pump, func(ev Event) error {
		switch ev.Kind {
		case KindContent:
			return writeText(ev.Content)

		case KindThinking:
			if opts.ReasoningMode != reasoning.ModeAsReasoningContent {
				return writeText(ev.Content)
			}
			if err := ensureStarted(); err != nil {
				return err
			}
			if !thinkingOpen {
				thinkingIdx = blockIndex
				err := writeEvent(w, "content_block_start", types.ContentBlockStartEvent{
					Type:         "content_block_start",
					Index:        thinkingIdx,
					ContentBlock: types.ResponseBlock{Type: "thinking", Signature: signature},
				})
				if err != nil {
					return err
				}
				thinkingOpen = true
			}
			return writeEvent(w, "content_block_delta", types.ContentBlockDeltaEvent{
				Type:  "content_block_delta",
				Index: thinkingIdx,
				Delta: types.BlockDelta{Type: "thinking_delta", Thinking: ev.Content},
			})

		case KindToolUse:
			if err := ensureStarted(); err != nil {
				return err
			}
			if err := closeThinking(); err != nil {
				return err
			}
			if err := closeText(); err != nil {
				return err
			}
			id := ev.ToolCall.ID
			if id == "" {
				id = GenerateToolUseID()
			}
			err := writeEvent(w, "content_block_start", types.ContentBlockStartEvent{
				Type:         "content_block_start",
				Index:        blockIndex,
				ContentBlock: types.ResponseBlock{Type: "tool_use", ID: id, Name: ev.ToolCall.Name, Input: []byte("{}")},
			})
			if err != nil {
				return err
			}
			err = writeEvent(w, "content_block_delta", types.ContentBlockDeltaEvent{
				Type:  "content_block_delta",
				Index: blockIndex,
				Delta: types.BlockDelta{Type: "input_json_delta", PartialJSON: string(toolInputJSON(ev.ToolCall.Arguments))},
			})
			if err != nil {
				return err
			}
			err = writeEvent(w, "content_block_stop", types.ContentBlockStopEvent{Type: "content_block_stop", Index: blockIndex})
			if err != nil {
				return err
			}
			blockIndex++
			toolBlocks++
		}
		return nil
	})
	out.Summary = sum
	if err != nil {
		if out.Emitted && !errors.Is(err, ErrFirstTokenTimeout) && ctx.Err() == nil {
			_ = writeEvent(w, "error", types.AnthropicErrorResponse{
				Type: "error",
				Error: types.AnthropicErrorDetail{
					Type:    types.AnthropicErrAPI,
					Message: "Internal error during streaming",
				},
			})
		}
		return out, err
	}

	if err := ensureStarted(); err != nil {
		return out, err
	}
	if err := closeThinking(); err != nil {
		return out, err
	}
	if err := closeText(); err != nil {
		return out, err
	}

	completion := 0
	if opts.CountCompletion != nil {
		completion = opts.CountCompletion(sum.Content + sum.ThinkingContent)
	}
	fallback := func() int { return initialInput }
	if opts.FallbackPrompt == nil {
		fallback = nil
	}
	out.Accounting = AccountTokens(sum.ContextUsagePercentage, completion, opts.MaxInputTokens, fallback)

	out.FinishReason = "end_turn"
	if toolBlocks > 0 {
		out.FinishReason = "tool_use"
	}

	err = writeEvent(w, "message_delta", types.MessageDeltaEvent{
		Type:  "message_delta",
		Delta: types.MessageDelta{StopReason: out.FinishReason},
		Usage: types.AnthropicUsage{
			InputTokens:  out.Accounting.PromptTokens,
			OutputTokens: out.Accounting.CompletionTokens,
		},
	})
	if err != nil {
		return out, err
	}
	return out, writeEvent(w, "message_stop", types.MessageStopEvent{Type: "message_stop"})
}

// CollectAnthropic consumes the whole stream and builds a non-streaming
// Messages response.
func CollectAnthropic(ctx context.Context, body io.Reader, opts EmitOptions, pump PumpOptions) (*types.MessagesResponse, *Outcome, error) {
	out := &Outcome{}
	sum, err := Pump(ctx, body, pump, nil)
	out.Summary = sum
	if err != nil {
		return nil, out, err
	}

	var blocks []types.ResponseBlock
	text := sum.Content
	if sum.ThinkingContent != "" {
		if opts.ReasoningMode == reasoning.ModeAsReasoningContent {
			blocks = append(blocks, types.ResponseBlock{
				Type:      "thinking",
				Thinking:  sum.ThinkingContent,
				Signature: generateThinkingSignature(),
			})
		} else {
			text = sum.ThinkingContent + text
		}
	}
	if text != "" {
		blocks = append(blocks, types.ResponseBlock{Type: "text", Text: text})
	}
	for _, tc := range sum.ToolCalls {
		id := tc.ID
		if id == "" {
			id = GenerateToolUseID()
		}
		blocks = append(blocks, types.ResponseBlock{
			Type:  "tool_use",
			ID:    id,
			Name:  tc.Name,
			Input: toolInputJSON(tc.Arguments),
		})
	}
	if blocks == nil {
		blocks = []types.ResponseBlock{}
	}

	completion := 0
	if opts.CountCompletion != nil {
		completion = opts.CountCompletion(sum.Content + sum.ThinkingContent)
	}
	out.Accounting = AccountTokens(sum.ContextUsagePercentage, completion, opts.MaxInputTokens, opts.FallbackPrompt)

	out.FinishReason = "end_turn"
	if len(sum.ToolCalls) > 0 {
		out.FinishReason = "tool_use"
	}

	resp := &types.MessagesResponse{
		ID:         GenerateMessageID(),
		Type:       "message",
		Role:       "assistant",
		Model:      opts.Model,
		Content:    blocks,
		StopReason: out.FinishReason,
		Usage: types.AnthropicUsage{
			InputTokens:  out.Accounting.PromptTokens,
			OutputTokens: out.Accounting.CompletionTokens,
		},
	}
	return resp, out, nil
}
