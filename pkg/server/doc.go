// Package server ties the gateway together: it opens the database,
// builds the account pool, admission gate, model resolver and usage
// recorder, mounts the API and admin routes with their middleware
// chains, and owns the listener lifecycle.
//
// # Routes
//
//   - POST /v1/chat/completions - OpenAI-compatible chat (streaming and non-streaming)
//   - POST /v1/messages - Anthropic-compatible messages
//   - GET /v1/models - model list
//   - GET /health, GET / - liveness JSON
//   - GET /metrics - Prometheus scrape endpoint (when enabled)
//   - /admin/api/* - operator API (when enabled)
//
// # Middleware Chain
//
// Requests pass through, outermost first: Recovery, RequestID,
// Logging, CORS, then per-dialect client auth and per-key rate limits
// on the API endpoints.
//
// # Background Jobs
//
// A cron scheduler flushes buffered usage rows, refreshes account
// credentials ahead of expiry, re-fetches the model catalog when the
// cache goes stale and sweeps expired OAuth states. Jobs start with
// the listener and stop during graceful shutdown.
package server
