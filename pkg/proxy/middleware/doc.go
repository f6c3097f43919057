// Package middleware provides the HTTP middleware chain for the API
// surface: request IDs, structured request logging, panic recovery,
// CORS, client authentication and per-key rate limits.
//
// Order matters: Recovery wraps everything, RequestID runs before
// Logging so the ID appears in log lines, and auth runs before limits
// so limits apply to the authenticated key.
package middleware
