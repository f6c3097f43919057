// Package models implements model-name resolution for the gateway.
//
// Clients send model names in many shapes: dashed versions
// ("claude-haiku-4-5"), dated releases ("claude-3-7-sonnet-20250219"),
// "-latest" tags, and inverted forms with quality suffixes
// ("claude-4.5-opus-high"). The resolver normalizes all of them into the
// canonical dot form, then resolves through four layers: configured
// aliases, the hidden-model map (manual redirects, including opaque
// upstream identifiers and context-window upgrades), the dynamic catalog
// fetched from the upstream's model-list endpoint, and finally passthrough.
//
// The resolver never rejects a name. Unknown models are sent upstream
// normalized; the upstream is the final arbiter.
package models
