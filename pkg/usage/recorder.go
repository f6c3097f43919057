// Package usage records per-request usage rows with batched writes and
// estimates request cost from the model pricing table.
package usage

import (
	"context"
	"log/slog"
	"sync"

	"kirohq/gateway/pkg/storage"
)

// DefaultBatchSize is how many pending rows trigger an automatic flush.
const DefaultBatchSize = 100

// Recorder accumulates usage rows in memory and writes them in batches.
// Flush is called at stream end and on shutdown; a failed flush puts
// the rows back for the next attempt.
type Recorder struct {
	store     *storage.Store
	batchSize int

	mu      sync.Mutex
	pending []storage.UsageRecord
}

// NewRecorder creates a recorder. batchSize <= 0 uses DefaultBatchSize.
func NewRecorder(store *storage.Store, batchSize int) *Recorder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Recorder{store: store, batchSize: batchSize}
}

// Record queues one usage row. TotalTokens is derived when zero. The
// batch is flushed inline once it reaches the batch size.
func (r *Recorder) Record(ctx context.Context, rec storage.UsageRecord) {
	if rec.TotalTokens == 0 {
		rec.TotalTokens = rec.InputTokens + rec.OutputTokens
	}

	r.mu.Lock()
	r.pending = append(r.pending, rec)
	shouldFlush := len(r.pending) >= r.batchSize
	r.mu.Unlock()

	if shouldFlush {
		r.Flush(ctx)
	}
}

// Flush writes all pending rows. On failure the rows are re-queued and
// the error is logged; usage recording is best-effort and must never
// fail a client request.
func (r *Recorder) Flush(ctx context.Context) {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	if err := r.store.InsertUsageBatch(ctx, batch); err != nil {
		slog.Error("failed to flush usage records", "count", len(batch), "error", err)
		r.mu.Lock()
		r.pending = append(batch, r.pending...)
		r.mu.Unlock()
		return
	}
	slog.Debug("flushed usage records", "count", len(batch))
}

// PendingCount returns the number of queued rows.
func (r *Recorder) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
