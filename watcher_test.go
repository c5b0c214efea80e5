package blackboard

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_ExternalRewriteReloaded(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "blackboard.json")

	b, err := New(WithSnapshotPath(path))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer b.Shutdown(ctx)

	// A write made before the external rewrite must survive the merge.
	if err := b.Set(ctx, "app", "version", "1.0.0"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Another process rewrites the snapshot.
	external := `{"feature": {"enabled": true}}`
	if err := os.WriteFile(path, []byte(external), 0o600); err != nil {
		t.Fatal(err)
	}

	ok := waitFor(t, 3*time.Second, func() bool {
		_, found, _ := b.Get(ctx, "feature", "enabled")
		return found
	})
	if !ok {
		t.Fatal("externally added key never appeared in the cache")
	}

	v, found, _ := b.Get(ctx, "feature", "enabled")
	if !found || v != true {
		t.Errorf("feature/enabled = %v, %v; want true", v, found)
	}

	// Last-writer-wins merges must not drop the rest of the cache.
	if _, found, _ := b.Get(ctx, "app", "version"); !found {
		t.Error("reload dropped a key set before the external rewrite")
	}
}

func TestWatcher_ExternalValueWins(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "blackboard.json")

	b, err := New(WithSnapshotPath(path))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer b.Shutdown(ctx)

	if err := b.Set(ctx, "app", "version", "1.0.0"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{"app": {"version": "2.0.0"}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	ok := waitFor(t, 3*time.Second, func() bool {
		v, _, _ := b.Get(ctx, "app", "version")
		return v == "2.0.0"
	})
	if !ok {
		t.Error("externally rewritten value never replaced the cached one")
	}
}

func TestWatcher_OwnSaveSuppressed(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "blackboard.json")

	b, err := New(WithSnapshotPath(path))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer b.Shutdown(ctx)

	if err := b.Set(ctx, "app", "version", "1.0.0"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	reloads := testCounterValue(t, metricSnapshotReloads)

	// The store's own save fires a filesystem event; the watcher must
	// recognize it and not reload.
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	time.Sleep(500 * time.Millisecond)

	if got := testCounterValue(t, metricSnapshotReloads); got != reloads {
		t.Errorf("self-induced save triggered %v reloads", got-reloads)
	}

	// The cache is untouched.
	if v, found, _ := b.Get(ctx, "app", "version"); !found || v != "1.0.0" {
		t.Errorf("version = %v, %v after own save", v, found)
	}
}
