package ratelimit

import "time"

// KeyLimits configures the per-API-key limiter. Zero values disable
// the corresponding limit.
type KeyLimits struct {
	// RequestsPerMinute caps request rate via a token bucket.
	RequestsPerMinute int

	// TokensPerMinute caps token throughput over a rolling minute.
	TokensPerMinute int

	// MaxConcurrent caps simultaneous in-flight requests for the key.
	MaxConcurrent int
}

// CheckResult reports the outcome of a per-key limit check.
type CheckResult struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Reason names the limit that rejected the request.
	Reason string

	// Limit is the configured value of that limit.
	Limit int64

	// Remaining is the headroom left in the current window.
	Remaining int64

	// RetryAfter suggests how long the client should wait.
	RetryAfter time.Duration
}
