package ratelimit

import "time"

// KeyLimiter enforces the limits attached to one API key. Unlike the
// Gate it never queues: a request over any limit is rejected and the
// caller answers 429.
type KeyLimiter struct {
	requests   *TokenBucket
	tokens     *SlidingWindow
	concurrent *ConcurrentLimiter
	limits     KeyLimits
}

// NewKeyLimiter creates a limiter for the given limits. Only non-zero
// limits are enforced.
func NewKeyLimiter(limits KeyLimits) *KeyLimiter {
	kl := &KeyLimiter{limits: limits}

	if limits.RequestsPerMinute > 0 {
		// Burst up to the full minute allowance.
		kl.requests = NewTokenBucket(int64(limits.RequestsPerMinute), float64(limits.RequestsPerMinute)/60.0)
	}
	if limits.TokensPerMinute > 0 {
		kl.tokens = NewSlidingWindow(time.Minute, time.Second)
	}
	if limits.MaxConcurrent > 0 {
		kl.concurrent = NewConcurrentLimiter(limits.MaxConcurrent)
	}
	return kl
}

// CheckRequest consumes one request from the rate budget.
func (kl *KeyLimiter) CheckRequest() *CheckResult {
	if kl.requests != nil && !kl.requests.Take(1) {
		return &CheckResult{
			Allowed:    false,
			Reason:     "requests per minute limit exceeded",
			Limit:      kl.requests.Capacity(),
			Remaining:  kl.requests.Remaining(),
			RetryAfter: kl.requests.TimeUntilAvailable(1),
		}
	}
	return &CheckResult{Allowed: true}
}

// CheckTokens verifies the estimated token cost fits the rolling
// window. Actual usage is recorded afterwards with RecordTokens.
func (kl *KeyLimiter) CheckTokens(estimated int) *CheckResult {
	if kl.tokens == nil {
		return &CheckResult{Allowed: true}
	}

	limit := int64(kl.limits.TokensPerMinute)
	used := kl.tokens.Sum()
	if used+int64(estimated) > limit {
		return &CheckResult{
			Allowed:    false,
			Reason:     "tokens per minute limit exceeded",
			Limit:      limit,
			Remaining:  max64(0, limit-used),
			RetryAfter: time.Minute,
		}
	}
	return &CheckResult{Allowed: true}
}

// RecordTokens records the tokens a finished request actually used.
func (kl *KeyLimiter) RecordTokens(actual int) {
	if kl.tokens != nil {
		kl.tokens.Add(int64(actual))
	}
}

// AcquireConcurrent claims a concurrency slot for the key. A true
// return must be paired with ReleaseConcurrent.
func (kl *KeyLimiter) AcquireConcurrent() bool {
	if kl.concurrent == nil {
		return true
	}
	return kl.concurrent.Acquire()
}

// ReleaseConcurrent returns a slot claimed by AcquireConcurrent.
func (kl *KeyLimiter) ReleaseConcurrent() {
	if kl.concurrent != nil {
		kl.concurrent.Release()
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
