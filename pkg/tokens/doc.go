// Package tokens provides character-based token estimation.
//
// The gateway needs token counts in two places: before a request, to
// estimate input usage against the model's context window, and after a
// stream, to count completion tokens when the upstream reports none.
// Both use the same character-ratio counter; payload-level estimates
// additionally apply a correction factor for JSON serialization overhead.
package tokens
