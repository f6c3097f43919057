package types

import "encoding/json"

// AssistantRequest is the native upstream payload POSTed to the
// generateAssistantResponse endpoint. Field names follow the upstream
// wire contract exactly.
type AssistantRequest struct {
	// ConversationState carries the conversation and the current turn.
	ConversationState ConversationState `json:"conversationState"`

	// ProfileArn is set only for the simple-refresh credential family.
	ProfileArn string `json:"profileArn,omitempty"`
}

// ConversationState is the conversation container of an AssistantRequest.
type ConversationState struct {
	// ChatTriggerType is always "MANUAL" for gateway traffic.
	ChatTriggerType string `json:"chatTriggerType"`

	// ConversationID identifies the conversation across turns.
	ConversationID string `json:"conversationId"`

	// CurrentMessage is the turn being submitted. Exactly one per request.
	CurrentMessage CurrentMessage `json:"currentMessage"`

	// History is the list of prior turns, oldest first.
	History []HistoryEntry `json:"history,omitempty"`
}

// CurrentMessage wraps the user input of the current turn.
type CurrentMessage struct {
	UserInputMessage UserInputMessage `json:"userInputMessage"`
}

// HistoryEntry is one prior turn: exactly one of the two fields is set.
type HistoryEntry struct {
	UserInputMessage         *UserInputMessage         `json:"userInputMessage,omitempty"`
	AssistantResponseMessage *AssistantResponseMessage `json:"assistantResponseMessage,omitempty"`
}

// UserInputMessage is a user turn in the upstream shape.
type UserInputMessage struct {
	// Content is the text of the turn.
	Content string `json:"content"`

	// ModelID is the resolved upstream model identifier.
	ModelID string `json:"modelId,omitempty"`

	// Origin is always "AI_EDITOR".
	Origin string `json:"origin,omitempty"`

	// Images carries inline images attached to the turn.
	Images []UpstreamImage `json:"images,omitempty"`

	// UserInputMessageContext carries tools and tool results.
	UserInputMessageContext *UserInputMessageContext `json:"userInputMessageContext,omitempty"`
}

// AssistantResponseMessage is an assistant turn in the upstream shape.
type AssistantResponseMessage struct {
	// Content is the assistant text.
	Content string `json:"content"`

	// ToolUses lists the tool calls the assistant made in this turn.
	ToolUses []UpstreamToolUse `json:"toolUses,omitempty"`
}

// UserInputMessageContext carries the tool surface of a user turn.
type UserInputMessageContext struct {
	// Tools is the tool schemas offered to the model.
	Tools []UpstreamToolSpec `json:"tools,omitempty"`

	// ToolResults is the results for the assistant's previous tool calls.
	ToolResults []UpstreamToolResult `json:"toolResults,omitempty"`
}

// UpstreamToolSpec wraps one tool schema.
type UpstreamToolSpec struct {
	ToolSpecification UpstreamToolSpecification `json:"toolSpecification"`
}

// UpstreamToolSpecification is the upstream tool schema shape.
type UpstreamToolSpecification struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema UpstreamToolSchema `json:"inputSchema"`
}

// UpstreamToolSchema nests the JSON schema under a "json" key.
type UpstreamToolSchema struct {
	JSON map[string]interface{} `json:"json"`
}

// UpstreamToolUse is one assistant tool call in history.
type UpstreamToolUse struct {
	ToolUseID string          `json:"toolUseId"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
}

// UpstreamToolResult is one tool result in the current turn.
type UpstreamToolResult struct {
	ToolUseID string                `json:"toolUseId"`
	Status    string                `json:"status"`
	Content   []UpstreamToolContent `json:"content"`
}

// UpstreamToolContent is a text fragment of a tool result.
type UpstreamToolContent struct {
	Text string `json:"text"`
}

// UpstreamImage is an inline image in the upstream shape.
type UpstreamImage struct {
	// Format is the image format, e.g. "png" or "jpeg".
	Format string `json:"format"`

	// Source carries the base64 image bytes.
	Source UpstreamImageSource `json:"source"`
}

// UpstreamImageSource holds the base64-encoded image bytes.
type UpstreamImageSource struct {
	Bytes string `json:"bytes"`
}
