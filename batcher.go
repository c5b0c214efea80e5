package blackboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/3disturbed/BlackBoard/pkg/backend"
)

// batcher queues writes destined for the durable backend and flushes them as
// one bulk upsert once the queue reaches a threshold or a flush is requested.
//
// The queue is never discarded on failure: a failed batch is re-queued at the
// front so the next flush retries it ahead of newer writes. Flushes are
// single-flight; enqueues arriving during an in-flight flush land in the
// next batch.
type batcher struct {
	be        backend.Backend
	threshold int
	log       *slog.Logger

	mu    sync.Mutex
	queue []backend.Write

	// flushMu serializes flushes without blocking enqueues.
	flushMu sync.Mutex
}

func newBatcher(be backend.Backend, threshold int, log *slog.Logger) *batcher {
	return &batcher{be: be, threshold: threshold, log: log}
}

// setBackend swaps the flush target. Called once, when Connect replaces the
// no-op backend with the configured one.
func (b *batcher) setBackend(be backend.Backend) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	b.be = be
}

// enqueue appends a pending write and reports whether the queue has reached
// the flush threshold.
func (b *batcher) enqueue(w backend.Write) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, w)
	return len(b.queue) >= b.threshold
}

// discard drops any pending write for (section, key) so a later flush
// cannot resurrect a deleted key.
func (b *batcher) discard(section, key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = deleteWrites(b.queue, func(w backend.Write) bool {
		return w.Section == section && w.Key == key
	})
}

// discardSection drops every pending write under a section.
func (b *batcher) discardSection(section string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = deleteWrites(b.queue, func(w backend.Write) bool {
		return w.Section == section
	})
}

// pending returns the current queue length.
func (b *batcher) pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// flush sends the queued writes to the backend as a single bulk upsert.
// Duplicate (section, key) entries collapse to their latest value at the
// position of first enqueue; distinct keys keep issuance order. On failure
// the batch is restored to the front of the queue and the error returned.
func (b *batcher) flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	batch := b.queue
	b.queue = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	writes := collapse(batch)

	if err := b.be.BulkUpsert(ctx, writes); err != nil {
		b.mu.Lock()
		b.queue = append(writes, b.queue...)
		b.mu.Unlock()
		metricFlushes.WithLabelValues("error").Inc()
		return fmt.Errorf("bulk upsert: %w", err)
	}

	metricFlushes.WithLabelValues("ok").Inc()
	b.log.Debug("flushed pending writes", "count", len(writes))
	return nil
}

// collapse deduplicates a batch: the latest value wins, placed where the
// key was first enqueued.
func collapse(batch []backend.Write) []backend.Write {
	seen := make(map[cacheKey]int, len(batch))
	out := make([]backend.Write, 0, len(batch))
	for _, w := range batch {
		ck := cacheKey{w.Section, w.Key}
		if i, ok := seen[ck]; ok {
			out[i].Value = w.Value
			continue
		}
		seen[ck] = len(out)
		out = append(out, w)
	}
	return out
}

func deleteWrites(queue []backend.Write, drop func(backend.Write) bool) []backend.Write {
	out := queue[:0]
	for _, w := range queue {
		if !drop(w) {
			out = append(out, w)
		}
	}
	return out
}
