package ratelimit

import "sync/atomic"

// ConcurrentLimiter is a lock-free counting semaphore bounding
// simultaneous in-flight requests.
type ConcurrentLimiter struct {
	limit   int64
	current int64
}

// NewConcurrentLimiter creates a semaphore with the given capacity.
func NewConcurrentLimiter(limit int) *ConcurrentLimiter {
	return &ConcurrentLimiter{limit: int64(limit)}
}

// Acquire claims a slot. A true return must be paired with Release.
func (cl *ConcurrentLimiter) Acquire() bool {
	if atomic.AddInt64(&cl.current, 1) > cl.limit {
		atomic.AddInt64(&cl.current, -1)
		return false
	}
	return true
}

// Release returns a slot claimed by Acquire.
func (cl *ConcurrentLimiter) Release() {
	atomic.AddInt64(&cl.current, -1)
}

// Current returns the number of in-flight requests.
func (cl *ConcurrentLimiter) Current() int64 {
	return atomic.LoadInt64(&cl.current)
}

// Remaining returns the number of free slots.
func (cl *ConcurrentLimiter) Remaining() int64 {
	remaining := cl.limit - atomic.LoadInt64(&cl.current)
	if remaining < 0 {
		return 0
	}
	return remaining
}
