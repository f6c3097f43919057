// Package handlers implements the HTTP handlers behind the API
// surface: the OpenAI and Anthropic chat endpoints, the model list and
// the health probe.
//
// Both chat endpoints share one pipeline: parse, resolve the model,
// rewrite truncated history, translate to the upstream payload, pass
// the admission gate, select an account, then stream with first-token
// retry. Only the parsing and the re-emission differ per dialect.
package handlers
