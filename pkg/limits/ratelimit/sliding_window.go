package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow counts usage over a rolling period using fixed-size
// time buckets. A one-minute window with one-second buckets keeps 60
// slots regardless of traffic.
type SlidingWindow struct {
	mu         sync.Mutex
	window     time.Duration
	bucketSize time.Duration
	buckets    []windowBucket
}

type windowBucket struct {
	timestamp time.Time
	value     int64
}

// NewSlidingWindow creates a window of the given duration with
// window/bucketSize slots.
func NewSlidingWindow(window, bucketSize time.Duration) *SlidingWindow {
	n := int(window / bucketSize)
	if n == 0 {
		n = 1
	}
	return &SlidingWindow{
		window:     window,
		bucketSize: bucketSize,
		buckets:    make([]windowBucket, n),
	}
}

// Add records usage in the current time bucket.
func (sw *SlidingWindow) Add(value int64) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.pruneLocked(now)
	sw.bucketForLocked(now).value += value
}

// Sum returns the total usage inside the window.
func (sw *SlidingWindow) Sum() int64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.pruneLocked(time.Now())

	var sum int64
	for i := range sw.buckets {
		if !sw.buckets[i].timestamp.IsZero() {
			sum += sw.buckets[i].value
		}
	}
	return sum
}

func (sw *SlidingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-sw.window)
	for i := range sw.buckets {
		if !sw.buckets[i].timestamp.IsZero() && sw.buckets[i].timestamp.Before(cutoff) {
			sw.buckets[i] = windowBucket{}
		}
	}
}

func (sw *SlidingWindow) bucketForLocked(now time.Time) *windowBucket {
	slot := now.Truncate(sw.bucketSize)

	for i := range sw.buckets {
		if sw.buckets[i].timestamp.Equal(slot) {
			return &sw.buckets[i]
		}
	}

	// Reuse an empty slot, else evict the oldest.
	target := -1
	for i := range sw.buckets {
		if sw.buckets[i].timestamp.IsZero() {
			target = i
			break
		}
	}
	if target == -1 {
		target = 0
		for i := 1; i < len(sw.buckets); i++ {
			if sw.buckets[i].timestamp.Before(sw.buckets[target].timestamp) {
				target = i
			}
		}
	}

	sw.buckets[target] = windowBucket{timestamp: slot}
	return &sw.buckets[target]
}
