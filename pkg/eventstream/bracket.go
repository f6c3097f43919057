package eventstream

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// bracketCallPattern matches the textual tool-call form some models emit
// instead of structured events: [Called get_weather with args: {...}].
var bracketCallPattern = regexp.MustCompile(`(?i)\[Called\s+(\w+)\s+with\s+args:\s*`)

// GenerateToolCallID returns a fresh OpenAI-shaped tool-call identifier.
func GenerateToolCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// ParseBracketToolCalls extracts tool calls embedded in free text using the
// bracket form. This is a heuristic for models that narrate their calls;
// it is applied after stream end and only to accumulated content.
func ParseBracketToolCalls(text string) []ToolCall {
	if text == "" || !strings.Contains(text, "[Called") {
		return nil
	}

	var calls []ToolCall
	for _, m := range bracketCallPattern.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		argsStart := m[1]

		jsonStart := strings.Index(text[argsStart:], "{")
		if jsonStart == -1 {
			continue
		}
		jsonStart += argsStart

		jsonEnd := findMatchingBrace(text, jsonStart)
		if jsonEnd == -1 {
			continue
		}

		raw := text[jsonStart : jsonEnd+1]
		var parsed interface{}
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			slog.Warn("failed to parse bracket tool call arguments", "raw", truncateForLog(raw, 100))
			continue
		}
		canonical, err := json.Marshal(parsed)
		if err != nil {
			continue
		}

		calls = append(calls, ToolCall{
			ID:        GenerateToolCallID(),
			Name:      name,
			Arguments: string(canonical),
		})
	}
	return calls
}
