package stream

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"kirohq/gateway/pkg/reasoning"
)

type sseEvent struct {
	name string
	data map[string]interface{}
}

func typedEvents(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, frame := range strings.Split(body, "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame == "" {
			continue
		}
		lines := strings.SplitN(frame, "\n", 2)
		if len(lines) != 2 {
			t.Fatalf("malformed frame %q", frame)
		}
		name := strings.TrimPrefix(lines[0], "event: ")
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "data: ")), &data); err != nil {
			t.Fatalf("bad frame data %q: %v", frame, err)
		}
		events = append(events, sseEvent{name: name, data: data})
	}
	return events
}

func eventNames(events []sseEvent) []string {
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.name
	}
	return names
}

func TestEmitAnthropicTextSequence(t *testing.T) {
	rec := httptest.NewRecorder()
	input := `{"content":"hi there"}{"contextUsagePercentage":1.0}`

	out, err := EmitAnthropic(context.Background(), rec, strings.NewReader(input), testEmitOptions(), PumpOptions{})
	if err != nil {
		t.Fatalf("EmitAnthropic: %v", err)
	}
	if out.FinishReason != "end_turn" {
		t.Errorf("finish reason = %q", out.FinishReason)
	}

	events := typedEvents(t, rec.Body.String())
	want := []string{"message_start", "content_block_start", "content_block_delta", "content_block_stop", "message_delta", "message_stop"}
	names := eventNames(events)
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", names, want)
	}

	delta := events[2].data["delta"].(map[string]interface{})
	if delta["type"] != "text_delta" || delta["text"] != "hi there" {
		t.Errorf("delta = %v", delta)
	}

	md := events[4].data
	if md["delta"].(map[string]interface{})["stop_reason"] != "end_turn" {
		t.Errorf("message_delta = %v", md)
	}
	usage := md["usage"].(map[string]interface{})
	if usage["input_tokens"].(float64) != 1998 {
		t.Errorf("input_tokens = %v", usage["input_tokens"])
	}
}

func TestEmitAnthropicThinkingFirstBlock(t *testing.T) {
	rec := httptest.NewRecorder()
	tp := reasoning.NewParser(reasoning.ModeAsReasoningContent, nil, 0)
	input := `{"content":"<thinking>plan</thinking>result"}{"contextUsagePercentage":0.1}`

	_, err := EmitAnthropic(context.Background(), rec, strings.NewReader(input), testEmitOptions(), PumpOptions{Thinking: tp})
	if err != nil {
		t.Fatalf("EmitAnthropic: %v", err)
	}

	events := typedEvents(t, rec.Body.String())
	var starts []sseEvent
	for _, ev := range events {
		if ev.name == "content_block_start" {
			starts = append(starts, ev)
		}
	}
	if len(starts) != 2 {
		t.Fatalf("block starts = %v", eventNames(events))
	}

	thinkingBlock := starts[0].data["content_block"].(map[string]interface{})
	if thinkingBlock["type"] != "thinking" {
		t.Errorf("first block = %v", thinkingBlock)
	}
	if starts[0].data["index"].(float64) != 0 {
		t.Errorf("thinking block index = %v", starts[0].data["index"])
	}

	textBlock := starts[1].data["content_block"].(map[string]interface{})
	if textBlock["type"] != "text" {
		t.Errorf("second block = %v", textBlock)
	}
	if starts[1].data["index"].(float64) != 1 {
		t.Errorf("text block index = %v", starts[1].data["index"])
	}
}

func TestEmitAnthropicToolUse(t *testing.T) {
	rec := httptest.NewRecorder()
	input := `{"content":"calling"}{"name":"f","toolUseId":"t9","input":"{\"a\":true}","stop":true}{"contextUsagePercentage":0.2}`

	out, err := EmitAnthropic(context.Background(), rec, strings.NewReader(input), testEmitOptions(), PumpOptions{})
	if err != nil {
		t.Fatalf("EmitAnthropic: %v", err)
	}
	if out.FinishReason != "tool_use" {
		t.Errorf("finish reason = %q", out.FinishReason)
	}

	events := typedEvents(t, rec.Body.String())
	var toolStart, toolDelta *sseEvent
	for i := range events {
		if events[i].name == "content_block_start" {
			if cb := events[i].data["content_block"].(map[string]interface{}); cb["type"] == "tool_use" {
				toolStart = &events[i]
				toolDelta = &events[i+1]
			}
		}
	}
	if toolStart == nil {
		t.Fatalf("no tool_use block in %v", eventNames(events))
	}
	cb := toolStart.data["content_block"].(map[string]interface{})
	if cb["id"] != "t9" || cb["name"] != "f" {
		t.Errorf("tool block = %v", cb)
	}
	// Text block is index 0, tool block follows.
	if toolStart.data["index"].(float64) != 1 {
		t.Errorf("tool block index = %v", toolStart.data["index"])
	}
	delta := toolDelta.data["delta"].(map[string]interface{})
	if delta["type"] != "input_json_delta" || delta["partial_json"] != `{"a":true}` {
		t.Errorf("tool delta = %v", delta)
	}
}

func TestEmitAnthropicHoldsMessageStart(t *testing.T) {
	rec := httptest.NewRecorder()

	// Empty upstream: the emitter still produces a complete message, but
	// nothing was written before the stream resolved.
	_, err := EmitAnthropic(context.Background(), rec, strings.NewReader(""), testEmitOptions(), PumpOptions{})
	if err != nil {
		t.Fatalf("EmitAnthropic: %v", err)
	}
	names := eventNames(typedEvents(t, rec.Body.String()))
	if names[0] != "message_start" || names[len(names)-1] != "message_stop" {
		t.Errorf("events = %v", names)
	}
}

func TestCollectAnthropic(t *testing.T) {
	tp := reasoning.NewParser(reasoning.ModeAsReasoningContent, nil, 0)
	input := `{"content":"<thinking>w</thinking>done"}` +
		`{"name":"f","toolUseId":"t1","input":"{}","stop":true}` +
		`{"contextUsagePercentage":0.5}`

	resp, _, err := CollectAnthropic(context.Background(), strings.NewReader(input), testEmitOptions(), PumpOptions{Thinking: tp})
	if err != nil {
		t.Fatalf("CollectAnthropic: %v", err)
	}

	if resp.Type != "message" || resp.Role != "assistant" {
		t.Errorf("envelope = %+v", resp)
	}
	if resp.StopReason != "tool_use" {
		t.Errorf("stop_reason = %q", resp.StopReason)
	}
	if len(resp.Content) != 3 {
		t.Fatalf("blocks = %+v", resp.Content)
	}
	if resp.Content[0].Type != "thinking" || resp.Content[0].Thinking != "w" {
		t.Errorf("block[0] = %+v", resp.Content[0])
	}
	if resp.Content[1].Type != "text" || resp.Content[1].Text != "done" {
		t.Errorf("block[1] = %+v", resp.Content[1])
	}
	if resp.Content[2].Type != "tool_use" || resp.Content[2].ID != "t1" {
		t.Errorf("block[2] = %+v", resp.Content[2])
	}
}
