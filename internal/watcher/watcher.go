// Package watcher keeps the catalog synchronized with a live folder. It
// translates raw filesystem notifications into catalog mutations and
// file-added, file-removed and file-renamed events.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"media-library/internal/database"
	"media-library/internal/events"
	"media-library/internal/logging"
	"media-library/internal/mediatypes"
	"media-library/internal/metrics"
)

// renamePairWindow is how long a rename-from waits for its matching
// create before being treated as a plain removal.
const renamePairWindow = 2 * time.Second

// Watcher mirrors filesystem changes under one root into the catalog.
// Rename detection relies on the kernel reporting the old path first and
// the new path shortly after; one rename may be in flight at a time, and
// an unpaired rename-from degrades into a removal after the pairing
// window expires.
type Watcher struct {
	db  *database.Database
	bus *events.Bus

	mu     sync.Mutex
	fw     *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}
	root   string

	pendingFrom string
	pendingAt   time.Time
}

func New(db *database.Database, bus *events.Bus) *Watcher {
	return &Watcher{db: db, bus: bus}
}

// Watching reports whether a watch loop is currently running, and for
// which root.
func (w *Watcher) Watching() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.root, w.fw != nil
}

// Start begins watching root and its subdirectories. An already running
// watch is stopped first, so Start doubles as "switch folders".
func (w *Watcher) Start(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to stat watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %s is not a directory", root)
	}

	w.Stop()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watches are per directory, so the whole tree is registered up
	// front. Directories created later are added as their events arrive.
	if err := addTreeWatches(fw, root); err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	w.mu.Lock()
	w.fw = fw
	w.cancel = cancel
	w.done = done
	w.root = root
	w.pendingFrom = ""
	w.mu.Unlock()

	metrics.WatcherActive.Set(1)
	logging.Info("Watching %s", root)

	go w.loop(ctx, fw, done)
	return nil
}

// Stop ends the watch loop and releases the filesystem watches. Stopping
// an idle watcher is a no-op.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fw, cancel, done := w.fw, w.cancel, w.done
	root := w.root
	w.fw, w.cancel, w.done, w.root = nil, nil, nil, ""
	w.pendingFrom = ""
	w.mu.Unlock()

	if fw == nil {
		return
	}

	cancel()
	if err := fw.Close(); err != nil {
		logging.Warn("failed to close watcher: %v", err)
	}
	<-done

	metrics.WatcherActive.Set(0)
	logging.Info("Stopped watching %s", root)
}

func addTreeWatches(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("watch skipping %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	// The pairing window is enforced by polling rather than a per-event
	// timer; half the window keeps worst-case expiry under one window.
	tick := time.NewTicker(renamePairWindow / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(fw, ev)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			logging.Warn("watch error: %v", err)

		case <-tick.C:
			w.expirePending()
		}
	}
}

// handleEvent applies one filesystem notification to the catalog.
func (w *Watcher) handleEvent(fw *fsnotify.Watcher, ev fsnotify.Event) {
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Create):
		w.handleCreate(fw, ev.Name)
	case ev.Op.Has(fsnotify.Write):
		w.handleWrite(ev.Name)
	case ev.Op.Has(fsnotify.Remove):
		w.handleRemove(ev.Name)
	case ev.Op.Has(fsnotify.Rename):
		w.handleRenameFrom(ev.Name)
	}
}

func (w *Watcher) handleCreate(fw *fsnotify.Watcher, path string) {
	info, err := os.Lstat(path)
	if err != nil {
		// Already gone again; the matching remove will follow.
		return
	}

	if info.IsDir() {
		w.importTree(fw, path)
		return
	}
	if !info.Mode().IsRegular() {
		return
	}

	kind := mediatypes.KindForExt(filepath.Ext(path))
	if kind == mediatypes.KindOther {
		// A rename onto a non-media name takes the file out of the
		// catalog right away.
		if from, ok := w.takePending(); ok {
			w.removePath(from)
		}
		metrics.WatcherEventsTotal.WithLabelValues("dropped").Inc()
		return
	}

	asset := database.NewAssetFromPath(path, kind, info.Size())

	// A create arriving inside the pairing window completes a rename.
	if from, ok := w.takePending(); ok {
		renamed, err := w.db.RenamePath(context.Background(), from, asset)
		if err != nil {
			logging.Error("failed to apply rename %s -> %s: %v", from, path, err)
			return
		}
		if renamed {
			metrics.WatcherEventsTotal.WithLabelValues("renamed").Inc()
			w.bus.PublishFileRenamed(from, path)
			return
		}
		// The old path was never cataloged; fall through to a plain add.
	}

	if err := w.db.UpsertByPath(context.Background(), asset); err != nil {
		logging.Error("failed to catalog %s: %v", path, err)
		return
	}
	metrics.WatcherEventsTotal.WithLabelValues("added").Inc()
	w.bus.PublishFileAdded(asset.Filename, kind)
}

// importTree catalogs a directory that appeared inside the watched root,
// watching its subdirectories and importing any media already inside it.
// A directory moved in from outside the root arrives as one create event
// with its contents already in place.
func (w *Watcher) importTree(fw *fsnotify.Watcher, root string) {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if addErr := fw.Add(path); addErr != nil {
				logging.Warn("failed to watch new directory %s: %v", path, addErr)
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		kind := mediatypes.KindForExt(filepath.Ext(path))
		if kind == mediatypes.KindOther {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}

		asset := database.NewAssetFromPath(path, kind, info.Size())
		if err := w.db.UpsertByPath(context.Background(), asset); err != nil {
			logging.Error("failed to catalog %s: %v", path, err)
			return nil
		}
		metrics.WatcherEventsTotal.WithLabelValues("added").Inc()
		w.bus.PublishFileAdded(asset.Filename, kind)
		return nil
	})
	if err != nil {
		logging.Warn("failed to import new directory %s: %v", root, err)
	}
}

func (w *Watcher) handleWrite(path string) {
	kind := mediatypes.KindForExt(filepath.Ext(path))
	if kind == mediatypes.KindOther {
		return
	}

	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	asset := database.NewAssetFromPath(path, kind, info.Size())
	if err := w.db.UpsertByPath(context.Background(), asset); err != nil {
		logging.Error("failed to refresh %s: %v", path, err)
		return
	}
	metrics.WatcherEventsTotal.WithLabelValues("updated").Inc()
}

func (w *Watcher) handleRemove(path string) {
	w.removePath(path)
}

// handleRenameFrom records the old path of a rename. A second rename
// arriving while one is pending resolves the first as a removal.
func (w *Watcher) handleRenameFrom(path string) {
	if from, ok := w.takePending(); ok {
		w.removePath(from)
	}

	w.mu.Lock()
	w.pendingFrom = path
	w.pendingAt = time.Now()
	w.mu.Unlock()
}

// takePending claims the pending rename-from if one is still inside the
// pairing window.
func (w *Watcher) takePending() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pendingFrom == "" || time.Since(w.pendingAt) > renamePairWindow {
		return "", false
	}
	from := w.pendingFrom
	w.pendingFrom = ""
	return from, true
}

// expirePending resolves a rename-from whose create never arrived: the
// file left the watched tree, so it is a removal.
func (w *Watcher) expirePending() {
	w.mu.Lock()
	from := w.pendingFrom
	expired := from != "" && time.Since(w.pendingAt) > renamePairWindow
	if expired {
		w.pendingFrom = ""
	}
	w.mu.Unlock()

	if expired {
		w.removePath(from)
	}
}

// removePath drops path from the catalog, falling back to a subtree
// delete when path was a directory.
func (w *Watcher) removePath(path string) {
	removed, err := w.db.DeleteByPath(context.Background(), path)
	if err != nil {
		logging.Error("failed to remove %s: %v", path, err)
		return
	}
	if removed {
		metrics.WatcherEventsTotal.WithLabelValues("removed").Inc()
		w.bus.PublishFileRemoved(path)
		return
	}

	paths, err := w.db.DeleteUnder(context.Background(), path)
	if err != nil {
		logging.Error("failed to remove subtree %s: %v", path, err)
		return
	}
	for _, p := range paths {
		metrics.WatcherEventsTotal.WithLabelValues("removed").Inc()
		w.bus.PublishFileRemoved(p)
	}
}
