// Package types defines the wire types of both client dialects, the
// upstream payload shape, and the unified intermediate form.
//
// # Dialects
//
// The gateway speaks two client-facing dialects:
//
//   - OpenAI-style chat completions (openai.go): ChatCompletionRequest,
//     ChatCompletionResponse, ChatCompletionStreamChunk, ModelList.
//   - Anthropic-style messages (anthropic.go): MessagesRequest,
//     MessagesResponse, and the typed SSE event payloads.
//
// Both dialects are parsed into the unified form (unified.go):
// UnifiedMessage / UnifiedTool, which the payload builder turns into the
// upstream AssistantRequest (upstream.go).
//
// # JSON Serialization
//
// All types use standard encoding/json with struct tags matching each
// dialect's field-name convention (snake_case for the client dialects,
// camelCase for the upstream).
//
// Fields that may be either a string or a structured list in the Anthropic
// dialect (system prompt, message content, tool_result content) are held as
// json.RawMessage and decoded by the intake layer in pkg/convert.
package types
