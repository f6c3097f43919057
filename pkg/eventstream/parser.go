package eventstream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Event kinds produced by the parser.
const (
	// EventContent is a text chunk of the assistant response.
	EventContent = "content"

	// EventUsage carries the upstream's credit metering value.
	EventUsage = "usage"

	// EventContextUsage carries the percentage of the model's context
	// window consumed by this turn.
	EventContextUsage = "context_usage"
)

// Event is one parsed upstream event.
type Event struct {
	// Type is one of EventContent, EventUsage, EventContextUsage.
	Type string

	// Content is the text payload of a content event.
	Content string

	// Value is the numeric payload of usage and context_usage events.
	Value float64
}

// ToolCall is one assembled tool invocation.
type ToolCall struct {
	// ID is the upstream toolUseId (or a generated one for bracket calls).
	ID string

	// Name is the tool name.
	Name string

	// Arguments is the canonicalized argument JSON. "{}" when the
	// arguments failed to parse.
	Arguments string

	// Truncation is set when finalization diagnosed an upstream cutoff.
	Truncation *TruncationInfo
}

// TruncationInfo describes why a tool call's arguments were diagnosed as
// truncated by the upstream.
type TruncationInfo struct {
	// Reason is a human-readable explanation, e.g. "missing 2 closing brace(s)".
	Reason string

	// SizeBytes is the size of the argument data that was received.
	SizeBytes int
}

// eventPatterns maps JSON object prefixes to event kinds, in scan order.
// followupPrompt objects are recognized so they get consumed, then dropped.
var eventPatterns = []struct {
	prefix string
	kind   string
}{
	{`{"content":`, "content"},
	{`{"name":`, "tool_start"},
	{`{"input":`, "tool_input"},
	{`{"stop":`, "tool_stop"},
	{`{"followupPrompt":`, "followup"},
	{`{"usage":`, "usage"},
	{`{"contextUsagePercentage":`, "context_usage"},
}

// Parser is the incremental event-stream parser. One instance per upstream
// response; not safe for concurrent use.
type Parser struct {
	buffer      string
	lastContent *string
	current     *ToolCall
	toolCalls   []ToolCall
}

// NewParser creates a fresh parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends a chunk of upstream bytes and returns the events that became
// complete. Incomplete objects stay buffered until more bytes arrive.
func (p *Parser) Feed(chunk []byte) []Event {
	p.buffer += string(chunk)

	var events []Event
	for {
		earliestPos := -1
		earliestKind := ""
		for _, pat := range eventPatterns {
			pos := strings.Index(p.buffer, pat.prefix)
			if pos != -1 && (earliestPos == -1 || pos < earliestPos) {
				earliestPos = pos
				earliestKind = pat.kind
			}
		}
		if earliestPos == -1 {
			break
		}

		end := findMatchingBrace(p.buffer, earliestPos)
		if end == -1 {
			// Object not complete yet, wait for more data.
			break
		}

		raw := p.buffer[earliestPos : end+1]
		p.buffer = p.buffer[end+1:]

		var data map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			slog.Warn("failed to parse stream event", "prefix", truncateForLog(raw, 100))
			continue
		}

		if ev, ok := p.dispatch(earliestKind, data); ok {
			events = append(events, ev)
		}
	}
	return events
}

// dispatch routes a parsed object by kind. Tool events mutate assembly
// state and produce no public event.
func (p *Parser) dispatch(kind string, data map[string]interface{}) (Event, bool) {
	switch kind {
	case "content":
		return p.contentEvent(data)
	case "tool_start":
		p.toolStart(data)
	case "tool_input":
		p.toolInput(data)
	case "tool_stop":
		p.toolStop(data)
	case "usage":
		return Event{Type: EventUsage, Value: toFloat(data["usage"])}, true
	case "context_usage":
		pct := toFloat(data["contextUsagePercentage"])
		slog.Debug("received context_usage event", "percentage", pct)
		return Event{Type: EventContextUsage, Value: pct}, true
	}
	return Event{}, false
}

func (p *Parser) contentEvent(data map[string]interface{}) (Event, bool) {
	if fp, ok := data["followupPrompt"]; ok && fp != nil {
		return Event{}, false
	}
	content, _ := data["content"].(string)

	// The upstream occasionally double-emits a chunk verbatim.
	if p.lastContent != nil && content == *p.lastContent {
		return Event{}, false
	}
	p.lastContent = &content

	return Event{Type: EventContent, Content: content}, true
}

func (p *Parser) toolStart(data map[string]interface{}) {
	if p.current != nil {
		p.finalizeToolCall()
	}

	id, _ := data["toolUseId"].(string)
	if id == "" {
		id = GenerateToolCallID()
	}
	name, _ := data["name"].(string)

	p.current = &ToolCall{
		ID:        id,
		Name:      name,
		Arguments: inputAsString(data["input"]),
	}

	if stop, _ := data["stop"].(bool); stop {
		p.finalizeToolCall()
	}
}

func (p *Parser) toolInput(data map[string]interface{}) {
	if p.current == nil {
		return
	}
	p.current.Arguments += inputAsString(data["input"])
}

func (p *Parser) toolStop(data map[string]interface{}) {
	if stop, _ := data["stop"].(bool); stop && p.current != nil {
		p.finalizeToolCall()
	}
}

// finalizeToolCall canonicalizes the accumulated argument string and moves
// the call into the completed list. Unparseable arguments become "{}"; when
// the diagnostic says the JSON was cut off, the call is tagged truncated.
func (p *Parser) finalizeToolCall() {
	if p.current == nil {
		return
	}
	tc := p.current
	p.current = nil

	args := strings.TrimSpace(tc.Arguments)
	if args == "" {
		// Normal for duplicate tool calls from the upstream; the
		// duplicate with real arguments survives deduplication.
		slog.Debug("tool call has empty arguments", "tool", tc.Name)
		tc.Arguments = "{}"
		p.toolCalls = append(p.toolCalls, *tc)
		return
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(tc.Arguments), &parsed); err != nil {
		if info, truncated := diagnoseTruncation(tc.Arguments); truncated {
			tc.Truncation = info
			slog.Error("tool call truncated by upstream",
				"tool", tc.Name,
				"id", tc.ID,
				"size_bytes", info.SizeBytes,
				"reason", info.Reason,
			)
		} else {
			slog.Warn("failed to parse tool call arguments",
				"tool", tc.Name,
				"error", err,
				"raw", truncateForLog(tc.Arguments, 200),
			)
		}
		tc.Arguments = "{}"
	} else {
		canonical, err := json.Marshal(parsed)
		if err == nil {
			tc.Arguments = string(canonical)
		}
	}

	p.toolCalls = append(p.toolCalls, *tc)
}

// ToolCalls finalizes any in-flight tool call and returns the deduplicated
// list of assembled calls.
func (p *Parser) ToolCalls() []ToolCall {
	if p.current != nil {
		p.finalizeToolCall()
	}
	return DeduplicateToolCalls(p.toolCalls)
}

// Reset clears all parser state for reuse.
func (p *Parser) Reset() {
	p.buffer = ""
	p.lastContent = nil
	p.current = nil
	p.toolCalls = nil
}

// findMatchingBrace returns the index of the closing brace matching the
// opening brace at start, honoring nesting, quoted strings and escape
// sequences. Returns -1 when the object is not complete.
func findMatchingBrace(s string, start int) int {
	if start >= len(s) || s[start] != '{' {
		return -1
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// diagnoseTruncation analyzes a malformed argument string to tell an
// upstream cutoff apart from genuinely malformed model output. The brace
// counting is simplified and does not account for braces inside strings;
// that matches the failure shapes the upstream actually produces.
func diagnoseTruncation(args string) (*TruncationInfo, bool) {
	sizeBytes := len(args)
	stripped := strings.TrimSpace(args)
	if stripped == "" {
		return nil, false
	}

	openBraces := strings.Count(stripped, "{")
	closeBraces := strings.Count(stripped, "}")
	openBrackets := strings.Count(stripped, "[")
	closeBrackets := strings.Count(stripped, "]")

	if strings.HasPrefix(stripped, "{") && !strings.HasSuffix(stripped, "}") {
		return &TruncationInfo{
			Reason:    fmt.Sprintf("missing %d closing brace(s)", openBraces-closeBraces),
			SizeBytes: sizeBytes,
		}, true
	}
	if strings.HasPrefix(stripped, "[") && !strings.HasSuffix(stripped, "]") {
		return &TruncationInfo{
			Reason:    fmt.Sprintf("missing %d closing bracket(s)", openBrackets-closeBrackets),
			SizeBytes: sizeBytes,
		}, true
	}
	if openBraces != closeBraces {
		return &TruncationInfo{
			Reason:    fmt.Sprintf("unbalanced braces (%d open, %d close)", openBraces, closeBraces),
			SizeBytes: sizeBytes,
		}, true
	}
	if openBrackets != closeBrackets {
		return &TruncationInfo{
			Reason:    fmt.Sprintf("unbalanced brackets (%d open, %d close)", openBrackets, closeBrackets),
			SizeBytes: sizeBytes,
		}, true
	}

	// Unterminated string literal: odd count of unescaped quotes.
	quotes := 0
	for i := 0; i < len(stripped); i++ {
		if stripped[i] == '\\' && i+1 < len(stripped) {
			i++
			continue
		}
		if stripped[i] == '"' {
			quotes++
		}
	}
	if quotes%2 != 0 {
		return &TruncationInfo{
			Reason:    "unclosed string literal",
			SizeBytes: sizeBytes,
		}, true
	}

	return nil, false
}

// inputAsString renders a tool input fragment, which may arrive as a string
// or as an already-structured object.
func inputAsString(input interface{}) string {
	switch v := input.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func toFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
