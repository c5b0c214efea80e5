package blackboard

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces the burst of filesystem events an editor or
// another process produces while rewriting the snapshot.
const debounceDelay = 100 * time.Millisecond

// watcher observes the snapshot file for external modifications and invokes
// reload when its content no longer matches the store's own last save.
// The parent directory is watched rather than the file itself so the
// atomic-rename writes other processes perform are still observed.
type watcher struct {
	path   string // cleaned snapshot path
	snap   *snapshotFile
	reload func()
	log    *slog.Logger

	fw   *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup
}

func newWatcher(snap *snapshotFile, reload func(), log *slog.Logger) *watcher {
	return &watcher{
		path:   filepath.Clean(snap.path),
		snap:   snap,
		reload: reload,
		log:    log,
		done:   make(chan struct{}),
	}
}

func (w *watcher) start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.fw = fw

	w.wg.Add(1)
	go w.loop()
	return nil
}

func (w *watcher) stop() {
	if w.fw == nil {
		return
	}
	close(w.done)
	if err := w.fw.Close(); err != nil {
		w.log.Debug("failed to close watcher", "error", err)
	}
	w.wg.Wait()
}

func (w *watcher) loop() {
	defer w.wg.Done()

	debounce := time.NewTimer(time.Hour)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			debounce.Reset(debounceDelay)

		case <-debounce.C:
			if w.snap.selfInduced() {
				continue
			}
			w.log.Info("snapshot changed externally, reloading", "path", w.path)
			metricSnapshotReloads.Inc()
			w.reload()

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("snapshot watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}
