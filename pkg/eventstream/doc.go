// Package eventstream implements the incremental parser for the upstream's
// framed JSON event stream.
//
// The upstream responds with concatenated JSON objects interleaved with
// binary framing that the parser treats as opaque. Events are recognized by
// their JSON prefix ({"content":, {"name":, {"input":, {"stop":, {"usage":,
// {"contextUsagePercentage":), extracted with a brace matcher that respects
// strings and escapes, and dispatched by kind.
//
// Tool calls arrive as a start event carrying name and toolUseId, zero or
// more input fragments, and a stop marker. The parser assembles them,
// canonicalizes the argument JSON at finalization, and when the argument
// string fails to parse runs a truncation diagnostic (unbalanced braces or
// brackets, unterminated string literal) so the recovery layer can tell an
// upstream cutoff apart from genuinely malformed output.
//
// The upstream occasionally double-emits content and tool calls; the parser
// deduplicates consecutive identical content chunks during the stream and
// deduplicates tool calls (by id, then by name+arguments) at the end.
package eventstream
