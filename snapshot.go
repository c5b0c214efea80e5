package blackboard

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// snapshotFile mirrors the full in-memory store to disk as human-readable
// JSON: {"section": {"key": value}}. Every save rewrites the whole file
// atomically (write-to-temp-then-rename). The SHA-256 of the last written
// bytes lets the change watcher tell the store's own saves apart from
// external edits.
type snapshotFile struct {
	path string
	log  *slog.Logger

	mu      sync.Mutex
	lastSum [sha256.Size]byte
	hasSum  bool
}

func newSnapshotFile(path string, log *slog.Logger) *snapshotFile {
	return &snapshotFile{path: path, log: log}
}

// load reads and parses the snapshot file. A missing file returns
// os.ErrNotExist (wrapped); an unparseable file is sidelined to
// path + ".corrupt" for operator inspection and ErrSnapshotCorrupt returned.
// Sidelining keeps a later save from overwriting the only copy of the data.
func (s *snapshotFile) load() (map[string]map[string]any, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var store map[string]map[string]any
	if err := json.Unmarshal(raw, &store); err != nil {
		side := s.path + ".corrupt"
		if mvErr := os.Rename(s.path, side); mvErr != nil {
			s.log.Warn("failed to sideline corrupt snapshot", "file", side, "error", mvErr)
		} else {
			s.log.Warn("sidelined corrupt snapshot", "file", side)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrSnapshotCorrupt, s.path, err)
	}
	if store == nil {
		store = make(map[string]map[string]any)
	}

	s.mu.Lock()
	s.lastSum = sha256.Sum256(raw)
	s.hasSum = true
	s.mu.Unlock()

	return store, nil
}

// save serializes the entire store and atomically replaces the file. The
// context bounds how long the caller waits; an abandoned write still
// finishes (or fails) on its own goroutine.
func (s *snapshotFile) save(ctx context.Context, store map[string]map[string]any) error {
	raw, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	raw = append(raw, '\n')

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.write(raw) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("save snapshot: %w", ctx.Err())
	}
}

// write performs the temp-write-then-rename under s.mu, serializing
// concurrent saves so the shared temp name and hash slot stay consistent.
func (s *snapshotFile) write(raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Record the hash before the rename lands so a watcher event racing
	// the save is still recognized as self-induced.
	s.lastSum = sha256.Sum256(raw)
	s.hasSum = true

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
			s.log.Debug("failed to remove temp snapshot", "file", tmp, "error", rmErr)
		}
		return fmt.Errorf("rename snapshot: %w", err)
	}

	metricSnapshotSaves.Inc()
	return nil
}

// selfInduced reports whether the file's current content matches the bytes
// of the store's own last save or load.
func (s *snapshotFile) selfInduced() bool {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return false
	}
	sum := sha256.Sum256(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasSum && sum == s.lastSum
}
