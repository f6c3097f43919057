package tokens

import (
	"strings"
	"testing"

	"kirohq/gateway/pkg/proxy/types"
)

func TestCountText(t *testing.T) {
	e := NewCharEstimator(DefaultConfig())

	tests := []struct {
		name  string
		text  string
		model string
		want  int
	}{
		{"empty", "", "claude-sonnet-4", 0},
		{"single char rounds up", "x", "claude-sonnet-4", 1},
		{"claude ratio", strings.Repeat("a", 35), "claude-sonnet-4", 10},
		{"default ratio", strings.Repeat("a", 40), "unknown-model", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.CountText(tt.text, tt.model); got != tt.want {
				t.Errorf("CountText(%d chars, %q) = %d, want %d", len(tt.text), tt.model, got, tt.want)
			}
		})
	}
}

func TestEstimatePayloadAppliesCorrection(t *testing.T) {
	e := NewCharEstimator(Config{
		Models:     map[string]float64{"default": 1.0},
		Correction: 0.5,
	})

	payload := &types.AssistantRequest{
		ConversationState: types.ConversationState{
			ChatTriggerType: "MANUAL",
			CurrentMessage: types.CurrentMessage{
				UserInputMessage: types.UserInputMessage{Content: "hello", ModelID: "m", Origin: "AI_EDITOR"},
			},
		},
	}

	raw := e.EstimatePayload(payload, "m")
	if raw == 0 {
		t.Fatal("estimate = 0")
	}

	e.SetCorrection(1.0)
	full := e.EstimatePayload(payload, "m")
	if raw >= full {
		t.Errorf("corrected estimate %d should be below uncorrected %d", raw, full)
	}
}

func TestEstimatePayloadNil(t *testing.T) {
	e := NewCharEstimator(DefaultConfig())
	if got := e.EstimatePayload(nil, "m"); got != 0 {
		t.Errorf("EstimatePayload(nil) = %d", got)
	}
}

func TestPrefixRatioMatch(t *testing.T) {
	e := NewCharEstimator(Config{
		Models: map[string]float64{"claude": 2.0, "default": 4.0},
	})
	if got := e.CountText(strings.Repeat("a", 20), "claude-opus-4.5"); got != 10 {
		t.Errorf("prefix ratio not applied, got %d", got)
	}
}

func TestCountConversation(t *testing.T) {
	e := NewCharEstimator(Config{Models: map[string]float64{"default": 1.0}})

	msgs := []types.UnifiedMessage{
		{Role: types.RoleUser, Content: strings.Repeat("a", 60)},
		{Role: types.RoleAssistant, ToolCalls: []types.UnifiedToolCall{
			{Name: strings.Repeat("b", 10), Arguments: strings.Repeat("c", 10)},
		}},
		{Role: types.RoleUser, ToolResults: []types.UnifiedToolResult{
			{Content: strings.Repeat("d", 20)},
		}},
	}

	got := e.CountConversation(msgs, "", nil, "m")
	wantF := float64(60+10+10+20)*PostHocCorrection + 0.5
	want := int(wantF)
	if got != want {
		t.Errorf("CountConversation = %d, want %d", got, want)
	}

	withExtras := e.CountConversation(msgs, strings.Repeat("s", 10), []types.UnifiedTool{
		{Name: "lookup", Description: "finds things", InputSchema: map[string]interface{}{"type": "object"}},
	}, "m")
	if withExtras <= got {
		t.Errorf("system prompt and tools not counted: %d <= %d", withExtras, got)
	}
}

func TestCountConversationIgnoresPayloadCorrection(t *testing.T) {
	e := NewCharEstimator(Config{
		Models:     map[string]float64{"default": 1.0},
		Correction: 0.5,
	})
	msgs := []types.UnifiedMessage{{Role: types.RoleUser, Content: strings.Repeat("a", 100)}}
	wantF := 100*PostHocCorrection + 0.5
	want := int(wantF)
	if got := e.CountConversation(msgs, "", nil, "m"); got != want {
		t.Errorf("CountConversation = %d, want %d (payload correction must not apply)", got, want)
	}
}
