package types

import "encoding/json"

// MessagesRequest represents an Anthropic-compatible /v1/messages request.
type MessagesRequest struct {
	// Model is the requested model identifier.
	Model string `json:"model"`

	// Messages is the ordered conversation.
	Messages []AnthropicMessage `json:"messages"`

	// System is the system prompt: either a plain string or a list of
	// text blocks carrying cache-control annotations. Annotations are dropped.
	System json.RawMessage `json:"system,omitempty"`

	// MaxTokens is the requested completion budget.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Stream enables typed SSE streaming.
	Stream bool `json:"stream,omitempty"`

	// Temperature controls sampling randomness.
	Temperature *float64 `json:"temperature,omitempty"`

	// TopP controls nucleus sampling.
	TopP *float64 `json:"top_p,omitempty"`

	// TopK restricts sampling to the top K tokens.
	TopK *int `json:"top_k,omitempty"`

	// StopSequences is a list of sequences where generation stops.
	StopSequences []string `json:"stop_sequences,omitempty"`

	// Tools is the list of tools offered to the model.
	Tools []AnthropicTool `json:"tools,omitempty"`
}

// AnthropicMessage is one turn of an Anthropic-dialect conversation.
// Content is either a plain string or a list of typed content blocks.
type AnthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// AnthropicContentBlock is one typed block inside a message's content list.
// Type is one of "text", "image", "tool_use", "tool_result", "thinking".
type AnthropicContentBlock struct {
	Type string `json:"type"`

	// Text is set for "text" and "thinking" blocks.
	Text string `json:"text,omitempty"`

	// Source is set for "image" blocks.
	Source *AnthropicImageSource `json:"source,omitempty"`

	// ID and Name are set for "tool_use" blocks; Input is the call arguments.
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// ToolUseID and Content are set for "tool_result" blocks. Content may be
	// a plain string or a nested block list (possibly containing images).
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// AnthropicImageSource is the image payload of an "image" block.
type AnthropicImageSource struct {
	// Type is "base64".
	Type string `json:"type"`

	// MediaType is the image MIME type, e.g. "image/png".
	MediaType string `json:"media_type"`

	// Data is the base64-encoded image bytes.
	Data string `json:"data"`
}

// AnthropicTool describes a tool in the Anthropic dialect.
type AnthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// MessagesResponse is the non-streaming /v1/messages response.
type MessagesResponse struct {
	// ID is a unique message identifier.
	ID string `json:"id"`

	// Type is always "message".
	Type string `json:"type"`

	// Role is always "assistant".
	Role string `json:"role"`

	// Model echoes the requested model.
	Model string `json:"model"`

	// Content is the ordered list of response blocks.
	Content []ResponseBlock `json:"content"`

	// StopReason is "end_turn", "tool_use" or "max_tokens".
	StopReason string `json:"stop_reason"`

	// StopSequence is the matched stop sequence, if any.
	StopSequence *string `json:"stop_sequence"`

	// Usage contains token accounting for the turn.
	Usage AnthropicUsage `json:"usage"`
}

// ResponseBlock is one content block of an assistant response.
type ResponseBlock struct {
	// Type is "text", "thinking" or "tool_use".
	Type string `json:"type"`

	// Text is set for text blocks.
	Text string `json:"text,omitempty"`

	// Thinking is set for thinking blocks; Signature is a placeholder
	// verification signature accompanying them.
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// ID, Name and Input are set for tool_use blocks.
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// AnthropicUsage is the Anthropic-dialect token accounting shape.
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AnthropicErrorResponse is the Anthropic-dialect error envelope.
type AnthropicErrorResponse struct {
	// Type is always "error".
	Type string `json:"type"`

	// Error carries the error detail.
	Error AnthropicErrorDetail `json:"error"`
}

// AnthropicErrorDetail is the inner error object.
type AnthropicErrorDetail struct {
	// Type categorizes the error: "invalid_request_error",
	// "authentication_error", "rate_limit_error", "api_error",
	// "overloaded_error".
	Type string `json:"type"`

	// Message is a human-readable description.
	Message string `json:"message"`
}

// Anthropic streaming event payloads. Each is serialized as the data of a
// typed SSE event whose event name equals the Type field.

// MessageStartEvent opens an Anthropic stream.
type MessageStartEvent struct {
	Type    string           `json:"type"`
	Message MessagesResponse `json:"message"`
}

// ContentBlockStartEvent opens one content block.
type ContentBlockStartEvent struct {
	Type         string        `json:"type"`
	Index        int           `json:"index"`
	ContentBlock ResponseBlock `json:"content_block"`
}

// ContentBlockDeltaEvent carries incremental block content.
type ContentBlockDeltaEvent struct {
	Type  string     `json:"type"`
	Index int        `json:"index"`
	Delta BlockDelta `json:"delta"`
}

// BlockDelta is the delta payload of a content_block_delta event.
// Type is "text_delta", "thinking_delta" or "input_json_delta".
type BlockDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// ContentBlockStopEvent closes one content block.
type ContentBlockStopEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// MessageDeltaEvent carries the final stop reason and usage.
type MessageDeltaEvent struct {
	Type  string         `json:"type"`
	Delta MessageDelta   `json:"delta"`
	Usage AnthropicUsage `json:"usage"`
}

// MessageDelta is the delta payload of a message_delta event.
type MessageDelta struct {
	StopReason   string  `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

// MessageStopEvent terminates an Anthropic stream.
type MessageStopEvent struct {
	Type string `json:"type"`
}

// PingEvent is a keepalive event.
type PingEvent struct {
	Type string `json:"type"`
}
