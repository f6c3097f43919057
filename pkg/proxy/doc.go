// Package proxy implements the client-facing API surface: the OpenAI
// and Anthropic dialect endpoints, the model listing, and the error
// mapping between internal failures and each dialect's error shape.
//
// Request flow: middleware (request id, logging, client auth, per-key
// limits) → handler (parse, resolve model, recovery rewrite, translate)
// → admission gate → account selection → upstream POST → stream
// re-emission. Completion feeds account health, usage recording and
// truncation persistence.
package proxy
