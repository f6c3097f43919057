package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// GateConfig holds the global admission knobs. A zero value disables
// the corresponding mechanism.
type GateConfig struct {
	// MaxConcurrent caps in-flight upstream requests.
	MaxConcurrent int

	// MinInterval is the minimum spacing between admissions.
	MinInterval time.Duration

	// Backoff429 is how long to pause all admissions after the
	// upstream answers 429.
	Backoff429 time.Duration
}

// GateStats is a snapshot of the gate's counters.
type GateStats struct {
	TotalRequests int64
	RateLimited   int64
	TotalWait     time.Duration
	MaxQueueLen   int
	Active        int
	Queued        int
}

// Gate is the process-wide admission gate in front of the upstream.
//
// Admission is strict FIFO: a request either takes a free slot
// immediately or appends itself to the waiter queue. A releasing
// request hands its slot directly to the head waiter, so a late
// arrival can never overtake a queued one. Independently of the
// queue, admissions are spaced by MinInterval, and any observed 429
// pauses all admissions until the backoff window passes.
type Gate struct {
	config GateConfig

	mu         sync.Mutex
	active     int
	queue      []chan struct{}
	pauseUntil time.Time

	// interval spaces admissions; burst 1 makes it a pure
	// min-interval throttle.
	interval *rate.Limiter

	stats GateStats
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	g := &Gate{config: config}
	if config.MinInterval > 0 {
		g.interval = rate.NewLimiter(rate.Every(config.MinInterval), 1)
	}
	return g
}

// Acquire blocks until the request is admitted or ctx is done.
// Every successful Acquire must be paired with Release.
func (g *Gate) Acquire(ctx context.Context) error {
	start := time.Now()

	g.mu.Lock()
	g.stats.TotalRequests++
	g.mu.Unlock()

	if err := g.waitForPause(ctx); err != nil {
		return err
	}
	if err := g.waitMinInterval(ctx); err != nil {
		return err
	}
	if err := g.acquireSlot(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	g.stats.TotalWait += time.Since(start)
	g.mu.Unlock()
	return nil
}

// Release returns the caller's slot. If waiters are queued the slot is
// passed to the head waiter instead of being freed.
func (g *Gate) Release() {
	if g.config.MaxConcurrent <= 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.queue) > 0 {
		head := g.queue[0]
		g.queue = g.queue[1:]
		close(head)
		return
	}
	if g.active > 0 {
		g.active--
	}
}

// Notify429 records an upstream 429 and pauses admissions. Overlapping
// notifications only ever extend the pause window.
func (g *Gate) Notify429() {
	if g.config.Backoff429 <= 0 {
		g.mu.Lock()
		g.stats.RateLimited++
		g.mu.Unlock()
		return
	}

	until := time.Now().Add(g.config.Backoff429)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.stats.RateLimited++
	if until.After(g.pauseUntil) {
		g.pauseUntil = until
	}
}

// Stats returns a snapshot of the gate's counters.
func (g *Gate) Stats() GateStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.stats
	s.Active = g.active
	s.Queued = len(g.queue)
	return s
}

func (g *Gate) waitForPause(ctx context.Context) error {
	for {
		g.mu.Lock()
		wait := time.Until(g.pauseUntil)
		g.mu.Unlock()

		if wait <= 0 {
			return nil
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

func (g *Gate) waitMinInterval(ctx context.Context) error {
	if g.interval == nil {
		return nil
	}
	return g.interval.Wait(ctx)
}

func (g *Gate) acquireSlot(ctx context.Context) error {
	if g.config.MaxConcurrent <= 0 {
		return nil
	}

	g.mu.Lock()
	if g.active < g.config.MaxConcurrent {
		g.active++
		g.mu.Unlock()
		return nil
	}

	waiter := make(chan struct{})
	g.queue = append(g.queue, waiter)
	if len(g.queue) > g.stats.MaxQueueLen {
		g.stats.MaxQueueLen = len(g.queue)
	}
	g.mu.Unlock()

	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, w := range g.queue {
			if w == waiter {
				g.queue = append(g.queue[:i], g.queue[i+1:]...)
				g.mu.Unlock()
				return ctx.Err()
			}
		}
		g.mu.Unlock()
		// The slot was already handed to us; give it back.
		g.Release()
		return ctx.Err()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
