// Package ratelimit provides the gateway's two admission layers.
//
// The Gate is the global, process-wide FIFO gate in front of the
// upstream: a concurrency cap with slot passing, a minimum spacing
// between admissions, and a shared pause window driven by upstream
// 429s.
//
// KeyLimiter enforces per-API-key limits: a token bucket for request
// rate, a sliding window for token throughput, and a concurrency cap.
// Key limits reject rather than queue; the caller maps a rejection to
// a 429 in the client's dialect.
package ratelimit
