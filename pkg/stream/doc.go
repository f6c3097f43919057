// Package stream re-emits the parsed upstream event stream to clients.
//
// The pump (source.go) drains the upstream response body through the
// event-stream parser and the thinking parser, delivering unified events
// to a handler. Two emitters share it: openai.go frames events as
// chat.completion.chunk SSE data lines, anthropic.go as typed Anthropic
// SSE events. Both share the token-accounting step (tokens.go) and the
// first-token retry loop (retry.go).
package stream
