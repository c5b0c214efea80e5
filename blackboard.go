// Package blackboard implements a small persistent key/value store organized
// as named sections of key/value pairs: a shared configuration and state
// blackboard for a process or small cluster.
//
// Three tiers: an in-memory tier (a plain map, or an LRU+TTL bounded cache
// when a durable backend is configured), an optional durable document-store
// backend reached through batched bulk writes, and a full-snapshot JSON file
// that mirrors the in-memory tier and is re-synchronized when another
// process or an operator edits it.
package blackboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/3disturbed/BlackBoard/pkg/backend"
	"github.com/3disturbed/BlackBoard/pkg/compress"
)

const maxNameLength = 256

// Board is a blackboard store instance. Construct with New, then call
// Connect before use; multiple independent instances may coexist.
type Board struct {
	cfg     *config
	log     *slog.Logger
	bounded bool

	cache cacheTier
	batch *batcher
	snap  *snapshotFile
	watch *watcher

	mu        sync.Mutex // guards be and the connect/shutdown transitions
	be        backend.Backend
	connected bool
	closed    atomic.Bool
}

// New constructs a Board from options. The cache mode is fixed here: a
// configured backend selects the bounded LRU+TTL tier, otherwise the
// unbounded map. No I/O happens until Connect.
func New(opts ...Option) (*Board, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	// Fail early on a bad codec name rather than at Connect.
	if _, err := compress.ByName(cfg.compression); err != nil {
		return nil, err
	}

	b := &Board{
		cfg:     cfg,
		log:     cfg.logger,
		bounded: cfg.backend.URL != "" || cfg.adapter != nil,
		be:      backend.None(),
		snap:    newSnapshotFile(cfg.snapshotPath, cfg.logger),
	}

	if b.bounded {
		b.cache = newBoundedCache(cfg.capacity, cfg.ttl)
	} else {
		b.cache = newSectionMap()
	}
	b.batch = newBatcher(b.be, cfg.threshold, b.log)

	return b, nil
}

// Connect establishes the durable-backend connection (if configured), loads
// the snapshot file, and starts the change watcher. A missing snapshot file
// is materialized empty; a corrupt one is reported via the returned
// ErrSnapshotCorrupt while the Board stays usable with an empty store, with
// the unparseable bytes sidelined to a ".corrupt" file for the operator.
func (b *Board) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return ErrClosed
	}
	if b.connected {
		return errors.New("blackboard: already connected")
	}

	be := b.cfg.adapter
	if be == nil {
		comp, err := compress.ByName(b.cfg.compression)
		if err != nil {
			return err
		}
		be, err = backend.Open(ctx, b.cfg.backend, comp)
		if err != nil {
			return fmt.Errorf("open backend: %w", err)
		}
	}
	b.be = be
	b.batch.setBackend(be)

	var corrupt error
	switch store, err := b.snap.load(); {
	case err == nil:
		for section, keys := range store {
			for key, value := range keys {
				b.cache.set(section, key, value)
			}
		}
		b.log.Info("loaded snapshot", "path", b.cfg.snapshotPath, "entries", b.cache.len())

	case errors.Is(err, os.ErrNotExist):
		// Materialize an empty file so the watcher has something to
		// observe and later loads stop missing.
		if saveErr := b.snap.save(ctx, map[string]map[string]any{}); saveErr != nil {
			b.log.Warn("failed to materialize empty snapshot", "path", b.cfg.snapshotPath, "error", saveErr)
		}

	case errors.Is(err, ErrSnapshotCorrupt):
		metricSnapshotCorrupt.Inc()
		b.log.Error("snapshot file is corrupt, starting empty; bytes sidelined",
			"path", b.cfg.snapshotPath, "error", err)
		corrupt = err

	default:
		b.log.Warn("failed to read snapshot, starting empty", "path", b.cfg.snapshotPath, "error", err)
	}

	if !b.cfg.disableWatch {
		b.watch = newWatcher(b.snap, b.reloadSnapshot, b.log)
		if err := b.watch.start(); err != nil {
			b.log.Warn("snapshot watcher unavailable, external edits will not be picked up", "error", err)
			b.watch = nil
		}
	}

	b.connected = true
	return corrupt
}

// Get returns the value stored under (section, key). A miss is reported as
// found == false, never as a sentinel value. The cache tier is consulted
// first; on a miss the durable backend is read and a hit repopulates the
// cache. Backend failures degrade to a miss and are logged and counted,
// never returned.
func (b *Board) Get(ctx context.Context, section, key string) (any, bool, error) {
	if err := b.validate(section, key); err != nil {
		return nil, false, err
	}
	if b.closed.Load() {
		return nil, false, ErrClosed
	}

	if v, ok := b.cache.get(section, key); ok {
		metricCacheHits.Inc()
		return v, true, nil
	}
	metricCacheMisses.Inc()

	v, err := b.backend().Read(ctx, section, key)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, false, nil
		}
		metricBackendErrors.Inc()
		b.log.Warn("backend read failed, serving miss", "section", section, "key", key, "error", err)
		return nil, false, nil
	}

	b.cache.set(section, key, v)
	return v, true, nil
}

// Set stores a value. The cache tier is updated (unless cacheable is false
// in bounded mode, in which case any cached copy is dropped) and a durable
// write is enqueued; the batcher flushes once its threshold is reached.
// Flush failures retain the queue and are logged, never returned.
func (b *Board) Set(ctx context.Context, section, key string, value any, cacheable ...bool) error {
	if err := b.validate(section, key); err != nil {
		return err
	}
	if b.closed.Load() {
		return ErrClosed
	}

	toCache := true
	if len(cacheable) > 0 {
		toCache = cacheable[0]
	}

	// cacheable=false only means something when a durable tier exists;
	// in unbounded mode the map is the only copy, so always cache.
	if toCache || !b.bounded {
		b.cache.set(section, key, value)
	} else {
		b.cache.delete(section, key)
	}

	if b.batch.enqueue(backend.Write{Section: section, Key: key, Value: value}) {
		if err := b.batch.flush(ctx); err != nil {
			b.log.Warn("batch flush failed, queue retained", "pending", b.batch.pending(), "error", err)
		}
	}
	return nil
}

// RemoveKey deletes (section, key) from every tier. Removing the last key
// of a section removes the section. Pending batched writes for the key are
// discarded so a later flush cannot resurrect it.
func (b *Board) RemoveKey(ctx context.Context, section, key string) error {
	if err := b.validate(section, key); err != nil {
		return err
	}
	if b.closed.Load() {
		return ErrClosed
	}

	b.batch.discard(section, key)
	b.cache.delete(section, key)

	if err := b.backend().DeleteOne(ctx, section, key); err != nil {
		metricBackendErrors.Inc()
		b.log.Warn("backend delete failed", "section", section, "key", key, "error", err)
	}
	return nil
}

// RemoveSection deletes a whole section from every tier.
func (b *Board) RemoveSection(ctx context.Context, section string) error {
	if err := validateName(section); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidSection, section)
	}
	if b.closed.Load() {
		return ErrClosed
	}

	b.batch.discardSection(section)
	b.cache.deleteSection(section)

	if err := b.backend().DeleteMany(ctx, section); err != nil {
		metricBackendErrors.Inc()
		b.log.Warn("backend section delete failed", "section", section, "error", err)
	}
	return nil
}

// Flush forces the pending backend batch out and rewrites the snapshot
// file from the current cache contents.
func (b *Board) Flush(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClosed
	}

	var errs []error
	if err := b.batch.flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush batch: %w", err))
	}
	if err := b.snap.save(ctx, b.cache.dump()); err != nil {
		errs = append(errs, fmt.Errorf("save snapshot: %w", err))
	}
	return errors.Join(errs...)
}

// ForEach visits every cached key of a section. Only the in-memory tier is
// consulted; in bounded mode evicted or expired keys are not visited.
func (b *Board) ForEach(section string, fn func(key string, value any)) error {
	if err := validateName(section); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidSection, section)
	}
	if b.closed.Load() {
		return ErrClosed
	}
	b.cache.forEach(section, fn)
	return nil
}

// Len returns the number of entries in the in-memory tier.
func (b *Board) Len() int {
	return b.cache.len()
}

// Ping verifies the durable backend connection. Without a configured
// backend it always succeeds.
func (b *Board) Ping(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.backend().Ping(ctx)
}

// Shutdown drains the store: stops the watcher, flushes the write batcher,
// writes a final snapshot, and closes the backend connection. Each step is
// best-effort under its own bounded timeout; a failed step is logged and
// the remaining steps still run. Further API calls return ErrClosed.
func (b *Board) Shutdown(ctx context.Context) error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.watch != nil {
		b.watch.stop()
	}

	var errs []error

	if err := b.step(ctx, b.batch.flush); err != nil {
		b.log.Error("shutdown: batch flush failed, unflushed writes lost on exit", "pending", b.batch.pending(), "error", err)
		errs = append(errs, err)
	}

	if err := b.step(ctx, func(ctx context.Context) error {
		return b.snap.save(ctx, b.cache.dump())
	}); err != nil {
		b.log.Error("shutdown: final snapshot failed", "error", err)
		errs = append(errs, err)
	}

	if err := b.step(ctx, b.be.Close); err != nil {
		b.log.Error("shutdown: backend close failed", "error", err)
		errs = append(errs, err)
	}

	b.log.Info("blackboard shut down")
	return errors.Join(errs...)
}

// ShutdownOnSignal arranges for an interrupt or terminate signal (or ctx
// cancellation) to invoke Shutdown. The returned channel closes when the
// shutdown has completed.
func (b *Board) ShutdownOnSignal(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-sigCtx.Done()

		// Detached context: the signal context is already done.
		shCtx, cancel := context.WithTimeout(context.Background(), 4*b.cfg.stepTimeout)
		defer cancel()
		if err := b.Shutdown(shCtx); err != nil {
			b.log.Error("shutdown on signal", "error", err)
		}
	}()
	return done
}

// step runs one shutdown step under the configured per-step timeout so an
// unreachable backend cannot hang process exit.
func (b *Board) step(ctx context.Context, fn func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, b.cfg.stepTimeout)
	defer cancel()
	return fn(stepCtx)
}

// reloadSnapshot merges an externally modified snapshot file into the cache
// tier, last-writer-wins per key: loaded values replace cached ones, cached
// keys absent from the file survive. Invoked by the change watcher.
func (b *Board) reloadSnapshot() {
	store, err := b.snap.load()
	if err != nil {
		if errors.Is(err, ErrSnapshotCorrupt) {
			metricSnapshotCorrupt.Inc()
			b.log.Error("externally modified snapshot is corrupt, keeping in-memory state", "error", err)
			return
		}
		b.log.Warn("failed to reload snapshot", "error", err)
		return
	}

	n := 0
	for section, keys := range store {
		for key, value := range keys {
			b.cache.set(section, key, value)
			n++
		}
	}
	b.log.Info("merged external snapshot changes", "entries", n)
}

// backend returns the current backend under the lifecycle lock; Connect may
// swap the no-op backend for a real one.
func (b *Board) backend() backend.Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.be
}

func (b *Board) validate(section, key string) error {
	if err := validateName(section); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidSection, section)
	}
	if err := validateName(key); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// validateName accepts non-empty names up to 256 bytes without "/", NUL, or
// control characters. The "/" exclusion keeps the composite section/key
// document identifier unambiguous.
func validateName(s string) error {
	if s == "" {
		return errors.New("empty name")
	}
	if len(s) > maxNameLength {
		return fmt.Errorf("name too long: %d bytes (max %d)", len(s), maxNameLength)
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f || r == '/' {
			return fmt.Errorf("invalid character %q", r)
		}
	}
	return nil
}
