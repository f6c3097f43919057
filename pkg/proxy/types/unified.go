package types

// Message roles in the unified form.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// UnifiedMessage is the dialect-neutral message form both intake layers
// produce. The upstream payload is built from a sequence of these.
//
// A single message never carries both ToolCalls and ToolResults: tool calls
// belong to assistant turns and tool results to user turns.
type UnifiedMessage struct {
	// Role is one of RoleUser, RoleAssistant, RoleSystem.
	Role string

	// Content is the plain text of the message.
	Content string

	// ToolCalls are the tool invocations of an assistant turn, in order.
	ToolCalls []UnifiedToolCall

	// ToolResults are the tool outputs carried by a user turn, in order.
	ToolResults []UnifiedToolResult

	// Images are inline images attached to the message.
	Images []UnifiedImage
}

// UnifiedToolCall is one tool invocation.
type UnifiedToolCall struct {
	// ID is the tool-use identifier the result must reference.
	ID string

	// Name is the tool name.
	Name string

	// Arguments is the call arguments as a JSON string.
	Arguments string
}

// UnifiedToolResult is one tool output.
type UnifiedToolResult struct {
	// ToolUseID references the tool call this result answers.
	ToolUseID string

	// Content is the result rendered as a string.
	Content string
}

// UnifiedImage is one inline image.
type UnifiedImage struct {
	// MediaType is the MIME type, e.g. "image/png".
	MediaType string

	// Data is the base64-encoded image bytes.
	Data string
}

// UnifiedTool is the dialect-neutral tool schema.
type UnifiedTool struct {
	// Name is the tool name.
	Name string

	// Description is the tool description. Empty descriptions are replaced
	// with a "Tool: {name}" placeholder during payload build.
	Description string

	// InputSchema is the JSON schema of the tool arguments.
	InputSchema map[string]interface{}
}

// HasToolContent reports whether the message carries tool calls or results.
func (m *UnifiedMessage) HasToolContent() bool {
	return len(m.ToolCalls) > 0 || len(m.ToolResults) > 0
}

// IsEmpty reports whether the message carries nothing at all.
func (m *UnifiedMessage) IsEmpty() bool {
	return m.Content == "" && !m.HasToolContent() && len(m.Images) == 0
}
