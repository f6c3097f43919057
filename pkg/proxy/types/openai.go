package types

// ChatCompletionRequest represents an OpenAI-compatible chat completion request.
// This matches the OpenAI Chat Completions API format exactly to ensure
// compatibility with existing OpenAI SDKs and tools.
type ChatCompletionRequest struct {
	// Model is the ID of the model to use (e.g., "claude-sonnet-4.5").
	Model string `json:"model"`

	// Messages is the conversation history as a list of messages.
	Messages []Message `json:"messages"`

	// Temperature controls randomness in the response (0.0 to 2.0).
	// Optional; the upstream applies its own default.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0).
	TopP *float64 `json:"top_p,omitempty"`

	// N is the number of completions to generate. Only 1 is supported.
	N *int `json:"n,omitempty"`

	// Stream enables server-sent events (SSE) streaming.
	Stream bool `json:"stream,omitempty"`

	// Stop is a list of sequences where generation stops.
	Stop []string `json:"stop,omitempty"`

	// User is a unique identifier for the end-user making the request.
	User string `json:"user,omitempty"`

	// Tools is a list of tools/functions the model can call.
	Tools []Tool `json:"tools,omitempty"`

	// ToolChoice controls which tool the model should use.
	// Can be "none", "auto", or {"type": "function", "function": {"name": ...}}.
	ToolChoice interface{} `json:"tool_choice,omitempty"`
}

// Message represents a single message in a conversation.
type Message struct {
	// Role is the author of the message ("system", "user", "assistant", or "tool").
	Role string `json:"role"`

	// Content is the text content of the message.
	// Can be a string or an array of content parts (for multimodal models).
	Content interface{} `json:"content"`

	// Name is the name of the author (optional, for user/assistant messages).
	Name string `json:"name,omitempty"`

	// ToolCalls is a list of tool calls made by the assistant (optional).
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is the ID of the tool call this message is responding to (for tool role).
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ReasoningContent carries model thinking text in non-streaming responses.
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

// ContentPart is one element of a multimodal message content array.
type ContentPart struct {
	// Type is "text" or "image_url".
	Type string `json:"type"`

	// Text is the text payload when Type is "text".
	Text string `json:"text,omitempty"`

	// ImageURL is the image payload when Type is "image_url".
	// The URL may be a data: URI carrying base64 image bytes.
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL wraps an image reference in an OpenAI content part.
type ImageURL struct {
	URL string `json:"url"`
}

// Tool represents a function/tool that the model can call.
//
// Two encodings are accepted: the standard nested form with a Function
// block, and a flat form (emitted by some editors) where name, description
// and input_schema sit directly on the tool. The nested form wins when
// both are present.
type Tool struct {
	// Type is always "function" for function calling.
	Type string `json:"type"`

	// Function describes the function to call (standard nested form).
	Function *FunctionDefinition `json:"function,omitempty"`

	// Name is the function name in the flat form.
	Name string `json:"name,omitempty"`

	// Description is the function description in the flat form.
	Description string `json:"description,omitempty"`

	// InputSchema is the parameter schema in the flat form.
	InputSchema map[string]interface{} `json:"input_schema,omitempty"`
}

// FunctionDefinition describes a function that can be called by the model.
type FunctionDefinition struct {
	// Name is the name of the function to call.
	Name string `json:"name"`

	// Description explains what the function does.
	Description string `json:"description,omitempty"`

	// Parameters is a JSON Schema object describing the function parameters.
	Parameters map[string]interface{} `json:"parameters"`
}

// ToolCall represents a function call made by the model.
type ToolCall struct {
	// ID is a unique identifier for the tool call.
	ID string `json:"id"`

	// Type is always "function" for function calling.
	Type string `json:"type"`

	// Index is the position of this call in a streaming delta.
	Index *int `json:"index,omitempty"`

	// Function contains the function name and arguments.
	Function FunctionCall `json:"function"`
}

// FunctionCall represents the function name and arguments.
type FunctionCall struct {
	// Name is the function name.
	Name string `json:"name"`

	// Arguments is the function arguments as a JSON string.
	Arguments string `json:"arguments"`
}

// ChatCompletionResponse represents an OpenAI-compatible chat completion response.
// This is returned for non-streaming requests.
type ChatCompletionResponse struct {
	// ID is a unique identifier for the chat completion.
	ID string `json:"id"`

	// Object is always "chat.completion".
	Object string `json:"object"`

	// Created is the Unix timestamp of when the completion was created.
	Created int64 `json:"created"`

	// Model is the model used for the completion.
	Model string `json:"model"`

	// Choices is a list of completion choices (always exactly one).
	Choices []Choice `json:"choices"`

	// Usage contains token usage statistics.
	Usage Usage `json:"usage"`
}

// Choice represents a single completion choice.
type Choice struct {
	// Index is the index of this choice in the list of choices.
	Index int `json:"index"`

	// Message is the generated message.
	Message Message `json:"message"`

	// FinishReason explains why the model stopped generating tokens.
	// Possible values: "stop", "length", "tool_calls".
	FinishReason string `json:"finish_reason"`
}

// Usage contains token usage statistics.
type Usage struct {
	// PromptTokens is the number of tokens in the prompt.
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the completion.
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the total number of tokens (prompt + completion).
	TotalTokens int `json:"total_tokens"`

	// CreditsUsed is the upstream metering value for this request,
	// when the upstream reported one.
	CreditsUsed *float64 `json:"credits_used,omitempty"`
}

// ChatCompletionStreamChunk represents a chunk in a streaming response.
// This is sent as Server-Sent Events (SSE) when stream=true.
type ChatCompletionStreamChunk struct {
	// ID is a unique identifier for the chat completion.
	ID string `json:"id"`

	// Object is always "chat.completion.chunk".
	Object string `json:"object"`

	// Created is the Unix timestamp of when the chunk was created.
	Created int64 `json:"created"`

	// Model is the model used for the completion.
	Model string `json:"model"`

	// Choices is a list of streaming choices.
	Choices []StreamChoice `json:"choices"`

	// Usage is present only on the final chunk.
	Usage *Usage `json:"usage,omitempty"`
}

// StreamChoice represents a single choice in a streaming response.
type StreamChoice struct {
	// Index is the index of this choice in the list of choices.
	Index int `json:"index"`

	// Delta contains incremental content.
	Delta Delta `json:"delta"`

	// FinishReason explains why the model stopped generating tokens.
	// Only present in the final chunk.
	FinishReason *string `json:"finish_reason"`
}

// Delta contains incremental content in a streaming response.
type Delta struct {
	// Role is the role of the message author (only in first chunk).
	Role string `json:"role,omitempty"`

	// Content is the incremental text content.
	Content string `json:"content,omitempty"`

	// ReasoningContent is incremental thinking text, emitted when the
	// reasoning parser runs in as_reasoning_content mode.
	ReasoningContent string `json:"reasoning_content,omitempty"`

	// ToolCalls contains incremental tool call information.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ModelList is the response shape of GET /v1/models.
type ModelList struct {
	// Object is always "list".
	Object string `json:"object"`

	// Data is the flat list of available models.
	Data []ModelInfo `json:"data"`
}

// ModelInfo describes one entry in the model list.
type ModelInfo struct {
	// ID is the model identifier clients pass in requests.
	ID string `json:"id"`

	// Object is always "model".
	Object string `json:"object"`

	// Created is a Unix timestamp (fixed for static entries).
	Created int64 `json:"created"`

	// OwnedBy identifies the model owner.
	OwnedBy string `json:"owned_by"`

	// Description is a short human-readable description.
	Description string `json:"description,omitempty"`
}
