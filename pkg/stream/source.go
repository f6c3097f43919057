package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"kirohq/gateway/pkg/eventstream"
	"kirohq/gateway/pkg/reasoning"
)

// ErrFirstTokenTimeout reports that the upstream produced no bytes within
// the first-token window. The retry loop treats it as retryable as long as
// nothing has been emitted downstream.
var ErrFirstTokenTimeout = errors.New("upstream produced no bytes within first-token timeout")

// Event kinds delivered by the pump.
const (
	KindContent      = "content"
	KindThinking     = "thinking"
	KindToolUse      = "tool_use"
	KindUsage        = "usage"
	KindContextUsage = "context_usage"
)

// Event is one unified stream event, dialect-agnostic.
type Event struct {
	Kind string

	// Content holds text for KindContent, thinking text (already processed
	// for the configured handling mode) for KindThinking.
	Content string

	// ToolCall is set for KindToolUse.
	ToolCall *eventstream.ToolCall

	// Value is the numeric payload of usage and context_usage events.
	Value float64
}

// Summary accumulates what the stream produced, for token accounting,
// bracket tool-call detection and usage recording.
type Summary struct {
	Content                string
	ThinkingContent        string
	ToolCalls              []eventstream.ToolCall
	Credits                *float64
	ContextUsagePercentage *float64
}

// CompletedNormally reports whether the stream ended with any completion
// signal. Some models send no usage or context_usage events, so response
// content alone also counts.
func (s *Summary) CompletedNormally() bool {
	return s.Credits != nil || s.ContextUsagePercentage != nil ||
		s.Content != "" || s.ThinkingContent != "" || len(s.ToolCalls) > 0
}

// ContentTruncated reports whether the stream looks cut off: content
// arrived but no completion signal did. Tool calls have their own
// truncation diagnostic and are excluded here.
func (s *Summary) ContentTruncated() bool {
	return s.Credits == nil && s.ContextUsagePercentage == nil &&
		s.Content != "" && len(s.ToolCalls) == 0
}

// PumpOptions configures a pump run.
type PumpOptions struct {
	// FirstTokenTimeout bounds the wait for the first upstream read.
	// Zero disables the bound.
	FirstTokenTimeout time.Duration

	// Thinking routes content through a thinking parser when non-nil.
	Thinking *reasoning.Parser
}

// Handler receives pump events in order. A non-nil return aborts the pump.
type Handler func(Event) error

type readChunk struct {
	data []byte
	err  error
}

// Pump drains body through the event-stream parser, delivering unified
// events to fn. It returns the accumulated summary; on error the summary
// reflects what was delivered before the failure.
//
// Tool-use events are delivered after the stream ends: assembled calls are
// merged with bracket-style calls found in the content text, then
// deduplicated.
func Pump(ctx context.Context, body io.Reader, opts PumpOptions, fn Handler) (*Summary, error) {
	if fn == nil {
		fn = func(Event) error { return nil }
	}

	parser := eventstream.NewParser()
	sum := &Summary{}

	chunks := make(chan readChunk)
	done := make(chan struct{})
	defer close(done)
	go func() {
		buf := make([]byte, 16*1024)
		for {
			n, err := body.Read(buf)
			var data []byte
			if n > 0 {
				data = append([]byte(nil), buf[:n]...)
			}
			select {
			case chunks <- readChunk{data: data, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	first := true
	for {
		var c readChunk
		if first && opts.FirstTokenTimeout > 0 {
			timer := time.NewTimer(opts.FirstTokenTimeout)
			select {
			case c = <-chunks:
				timer.Stop()
			case <-timer.C:
				slog.Warn("first token timeout", "timeout", opts.FirstTokenTimeout)
				return sum, ErrFirstTokenTimeout
			case <-ctx.Done():
				timer.Stop()
				return sum, ctx.Err()
			}
		} else {
			select {
			case c = <-chunks:
			case <-ctx.Done():
				return sum, ctx.Err()
			}
		}
		first = false

		if len(c.data) > 0 {
			if err := pumpEvents(parser, opts.Thinking, c.data, sum, fn); err != nil {
				return sum, err
			}
		}
		if c.err != nil {
			if c.err != io.EOF {
				return sum, c.err
			}
			break
		}
	}

	if tp := opts.Thinking; tp != nil {
		res := tp.Finalize()
		if err := deliverParsed(tp, res, sum, fn); err != nil {
			return sum, err
		}
	}

	calls := parser.ToolCalls()
	if brackets := eventstream.ParseBracketToolCalls(sum.Content); len(brackets) > 0 {
		calls = eventstream.DeduplicateToolCalls(append(calls, brackets...))
	}
	for i := range calls {
		if err := fn(Event{Kind: KindToolUse, ToolCall: &calls[i]}); err != nil {
			return sum, err
		}
	}
	sum.ToolCalls = calls

	return sum, nil
}

func pumpEvents(parser *eventstream.Parser, tp *reasoning.Parser, data []byte, sum *Summary, fn Handler) error {
	for _, ev := range parser.Feed(data) {
		switch ev.Type {
		case eventstream.EventContent:
			if tp != nil {
				if err := deliverParsed(tp, tp.Feed(ev.Content), sum, fn); err != nil {
					return err
				}
			} else {
				sum.Content += ev.Content
				if err := fn(Event{Kind: KindContent, Content: ev.Content}); err != nil {
					return err
				}
			}

		case eventstream.EventUsage:
			v := ev.Value
			sum.Credits = &v
			if err := fn(Event{Kind: KindUsage, Value: v}); err != nil {
				return err
			}

		case eventstream.EventContextUsage:
			v := ev.Value
			sum.ContextUsagePercentage = &v
			if err := fn(Event{Kind: KindContextUsage, Value: v}); err != nil {
				return err
			}
		}
	}
	return nil
}

// deliverParsed forwards one thinking-parser result: the thinking channel
// is run through ProcessForOutput for the configured handling mode before
// delivery.
func deliverParsed(tp *reasoning.Parser, res reasoning.Result, sum *Summary, fn Handler) error {
	if res.Thinking != "" {
		processed := tp.ProcessForOutput(res.Thinking, res.FirstThinkingChunk, res.LastThinkingChunk)
		if processed != "" {
			sum.ThinkingContent += processed
			if err := fn(Event{Kind: KindThinking, Content: processed}); err != nil {
				return err
			}
		}
	}
	if res.Regular != "" {
		sum.Content += res.Regular
		if err := fn(Event{Kind: KindContent, Content: res.Regular}); err != nil {
			return err
		}
	}
	return nil
}
