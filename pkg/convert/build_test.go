package convert

import (
	"strings"
	"testing"

	"kirohq/gateway/pkg/proxy/types"
)

func TestBuildPayloadBasic(t *testing.T) {
	payload, err := BuildPayload([]types.UnifiedMessage{
		{Role: types.RoleUser, Content: "hello"},
	}, "be helpful", "claude-sonnet-4", nil, BuildOptions{ConversationID: "conv-1"})
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}

	cs := payload.ConversationState
	if cs.ChatTriggerType != "MANUAL" || cs.ConversationID != "conv-1" {
		t.Errorf("conversation state = %+v", cs)
	}
	cur := cs.CurrentMessage.UserInputMessage
	if cur.Content != "be helpful\n\nhello" {
		t.Errorf("content = %q", cur.Content)
	}
	if cur.ModelID != "claude-sonnet-4" || cur.Origin != "AI_EDITOR" {
		t.Errorf("current message = %+v", cur)
	}
	if len(cs.History) != 0 {
		t.Errorf("history = %+v", cs.History)
	}
}

func TestBuildPayloadEmptyConversation(t *testing.T) {
	_, err := BuildPayload(nil, "sys", "m", nil, BuildOptions{})
	if err != ErrEmptyConversation {
		t.Errorf("err = %v, want ErrEmptyConversation", err)
	}
}

func TestBuildPayloadHistorySplit(t *testing.T) {
	payload, err := BuildPayload([]types.UnifiedMessage{
		{Role: types.RoleUser, Content: "first"},
		{Role: types.RoleAssistant, Content: "reply"},
		{Role: types.RoleUser, Content: "second"},
	}, "", "m", nil, BuildOptions{})
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}

	cs := payload.ConversationState
	if cs.CurrentMessage.UserInputMessage.Content != "second" {
		t.Errorf("current = %q", cs.CurrentMessage.UserInputMessage.Content)
	}
	if len(cs.History) != 2 {
		t.Fatalf("history = %+v", cs.History)
	}
	if cs.History[0].UserInputMessage == nil || cs.History[0].UserInputMessage.Content != "first" {
		t.Errorf("history[0] = %+v", cs.History[0])
	}
	if cs.History[1].AssistantResponseMessage == nil || cs.History[1].AssistantResponseMessage.Content != "reply" {
		t.Errorf("history[1] = %+v", cs.History[1])
	}
	// System prompt rides on the current message only.
	payload2, _ := BuildPayload([]types.UnifiedMessage{
		{Role: types.RoleUser, Content: "first"},
		{Role: types.RoleAssistant, Content: "reply"},
		{Role: types.RoleUser, Content: "second"},
	}, "SYS", "m", nil, BuildOptions{})
	if got := payload2.ConversationState.History[0].UserInputMessage.Content; strings.Contains(got, "SYS") {
		t.Errorf("history should not carry the system prompt: %q", got)
	}
}

func TestBuildPayloadContinueSynthesis(t *testing.T) {
	payload, err := BuildPayload([]types.UnifiedMessage{
		{Role: types.RoleUser, Content: "question"},
		{Role: types.RoleAssistant, Content: "partial answer"},
	}, "", "m", nil, BuildOptions{})
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}

	cs := payload.ConversationState
	if cs.CurrentMessage.UserInputMessage.Content != "Continue" {
		t.Errorf("current = %q", cs.CurrentMessage.UserInputMessage.Content)
	}
	if len(cs.History) != 2 {
		t.Errorf("history = %+v", cs.History)
	}
}

func TestBuildPayloadToolResultsCurrent(t *testing.T) {
	payload, err := BuildPayload([]types.UnifiedMessage{
		{Role: types.RoleUser, Content: "call it"},
		{Role: types.RoleAssistant, ToolCalls: []types.UnifiedToolCall{
			{ID: "call_1", Name: "f", Arguments: `{"x":1}`},
		}},
		{Role: types.RoleUser, ToolResults: []types.UnifiedToolResult{
			{ToolUseID: "call_1", Content: "ok"},
		}},
	}, "", "m", nil, BuildOptions{})
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}

	cur := payload.ConversationState.CurrentMessage.UserInputMessage
	if cur.UserInputMessageContext == nil {
		t.Fatal("missing userInputMessageContext")
	}
	trs := cur.UserInputMessageContext.ToolResults
	if len(trs) != 1 {
		t.Fatalf("tool results = %+v", trs)
	}
	if trs[0].ToolUseID != "call_1" || trs[0].Status != "success" {
		t.Errorf("tool result = %+v", trs[0])
	}
	if len(trs[0].Content) != 1 || trs[0].Content[0].Text != "ok" {
		t.Errorf("tool result content = %+v", trs[0].Content)
	}

	// The paired tool use stays in history with its id.
	uses := payload.ConversationState.History[1].AssistantResponseMessage.ToolUses
	if len(uses) != 1 || uses[0].ToolUseID != "call_1" {
		t.Errorf("tool uses = %+v", uses)
	}
	if string(uses[0].Input) != `{"x":1}` {
		t.Errorf("tool use input = %s", uses[0].Input)
	}
}

func TestBuildPayloadInvalidToolUseInput(t *testing.T) {
	payload, _ := BuildPayload([]types.UnifiedMessage{
		{Role: types.RoleAssistant, ToolCalls: []types.UnifiedToolCall{
			{ID: "c", Name: "f", Arguments: `{"broken":`},
		}},
	}, "", "m", nil, BuildOptions{})

	uses := payload.ConversationState.History[0].AssistantResponseMessage.ToolUses
	if string(uses[0].Input) != "{}" {
		t.Errorf("invalid input should become {}, got %s", uses[0].Input)
	}
}

func TestBuildPayloadThinkingInjection(t *testing.T) {
	payload, err := BuildPayload([]types.UnifiedMessage{
		{Role: types.RoleUser, Content: "solve", ToolResults: []types.UnifiedToolResult{
			{ToolUseID: "c1", Content: "r"},
		}},
	}, "sys", "m", nil, BuildOptions{InjectThinking: true, MaxThinkingLength: 20000})
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}

	content := payload.ConversationState.CurrentMessage.UserInputMessage.Content
	if !strings.HasPrefix(content, "<thinking_mode>enabled</thinking_mode><max_thinking_length>20000</max_thinking_length>") {
		t.Errorf("content = %q", content)
	}
	// Injection is not suppressed by tool results on the current turn.
	if payload.ConversationState.CurrentMessage.UserInputMessage.UserInputMessageContext == nil {
		t.Error("tool results dropped")
	}
}

func TestBuildPayloadToolSpecs(t *testing.T) {
	longDesc := strings.Repeat("d", 120)
	payload, err := BuildPayload([]types.UnifiedMessage{
		{Role: types.RoleUser, Content: "go"},
	}, "", "m", []types.UnifiedTool{
		{Name: "plain", Description: "does things", InputSchema: map[string]interface{}{
			"type":                 "object",
			"properties":           map[string]interface{}{"x": map[string]interface{}{"type": "string"}},
			"required":             []interface{}{"x"},
			"additionalProperties": false,
		}},
		{Name: "undocumented"},
		{Name: "verbose", Description: longDesc},
	}, BuildOptions{ToolDescriptionMaxLength: 100})
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}

	cur := payload.ConversationState.CurrentMessage.UserInputMessage
	specs := cur.UserInputMessageContext.Tools
	if len(specs) != 3 {
		t.Fatalf("specs = %+v", specs)
	}

	schema := specs[0].ToolSpecification.InputSchema.JSON
	if _, ok := schema["required"]; ok {
		t.Error("required not stripped from schema")
	}
	if _, ok := schema["additionalProperties"]; ok {
		t.Error("additionalProperties not stripped from schema")
	}
	if _, ok := schema["properties"]; !ok {
		t.Error("properties should survive sanitization")
	}

	if got := specs[1].ToolSpecification.Description; got != "Tool: undocumented" {
		t.Errorf("empty description placeholder = %q", got)
	}

	if got := specs[2].ToolSpecification.Description; got != "[Full documentation in system prompt under '## Tool: verbose']" {
		t.Errorf("overflow pointer = %q", got)
	}
	if !strings.Contains(cur.Content, "## Tool: verbose\n"+longDesc) {
		t.Errorf("overflow section missing from content: %q", cur.Content)
	}
}

func TestBuildPayloadImages(t *testing.T) {
	payload, err := BuildPayload([]types.UnifiedMessage{
		{Role: types.RoleUser, Content: "see", Images: []types.UnifiedImage{
			{MediaType: "image/jpg", Data: "QUJD"},
		}},
	}, "", "m", nil, BuildOptions{})
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}

	imgs := payload.ConversationState.CurrentMessage.UserInputMessage.Images
	if len(imgs) != 1 {
		t.Fatalf("images = %+v", imgs)
	}
	if imgs[0].Format != "jpeg" || imgs[0].Source.Bytes != "QUJD" {
		t.Errorf("image = %+v", imgs[0])
	}
}

func TestBuildPayloadProfileArn(t *testing.T) {
	payload, _ := BuildPayload([]types.UnifiedMessage{
		{Role: types.RoleUser, Content: "x"},
	}, "", "m", nil, BuildOptions{ProfileArn: "arn:aws:codewhisperer:us-east-1:1:profile/p"})
	if payload.ProfileArn != "arn:aws:codewhisperer:us-east-1:1:profile/p" {
		t.Errorf("profileArn = %q", payload.ProfileArn)
	}
}
