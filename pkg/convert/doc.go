// Package convert translates client requests into the upstream payload.
//
// Each dialect has an intake adapter (openai.go, anthropic.go) that parses
// the dialect-specific shapes into the unified form, and build.go turns a
// unified message sequence into the upstream AssistantRequest: splitting
// history from the current turn, merging the system prompt, injecting the
// thinking-mode marker, sanitizing tool schemas, and relocating oversized
// tool descriptions into the system prompt.
package convert
