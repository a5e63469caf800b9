// Package scanner walks a media tree and imports what it finds into the
// catalog.
package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"media-library/internal/database"
	"media-library/internal/events"
	"media-library/internal/logging"
	"media-library/internal/mediatypes"
	"media-library/internal/metrics"
)

// batchSize is how many discovered files are committed per transaction.
// Progress is published once per committed batch, so this also sets the
// granularity of scan-progress events.
const batchSize = 50

// ErrScanInProgress is returned when a scan is requested while one is
// already walking the tree.
var ErrScanInProgress = errors.New("scan already in progress")

// Scanner imports a folder tree into the catalog. One scan runs at a
// time; progress flows out on the event bus rather than through return
// values, so callers get an answer immediately.
type Scanner struct {
	db      *database.Database
	bus     *events.Bus
	running atomic.Bool
}

func New(db *database.Database, bus *events.Bus) *Scanner {
	return &Scanner{db: db, bus: bus}
}

// Running reports whether a scan is currently walking a tree.
func (s *Scanner) Running() bool {
	return s.running.Load()
}

// Scan imports every media file under root, asynchronously. It validates
// root and returns before any file is visited; a finished scan-progress
// event marks completion. Files already cataloged are left untouched, so
// re-scanning an unchanged tree is a no-op.
func (s *Scanner) Scan(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to stat scan root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("scan root %s is not a directory", root)
	}

	if !s.running.CompareAndSwap(false, true) {
		return ErrScanInProgress
	}

	go func() {
		defer s.running.Store(false)
		s.run(root)
	}()

	return nil
}

func (s *Scanner) run(root string) {
	logging.Info("Scanning %s", root)
	metrics.ScanRunsTotal.Inc()
	start := time.Now()

	var (
		count    int
		batch    []*database.Asset
		lastSeen string
	)

	flush := func(lastFile string) {
		if len(batch) == 0 {
			return
		}

		b, err := s.db.BeginBatch()
		if err != nil {
			logging.Error("scan batch failed to start: %v", err)
			batch = batch[:0]
			return
		}
		for _, a := range batch {
			if err == nil {
				err = s.db.InsertAsset(b, a)
			}
		}
		if err = s.db.EndBatch(b, err); err != nil {
			logging.Error("scan batch failed: %v", err)
			batch = batch[:0]
			return
		}

		count += len(batch)
		metrics.ScanFilesImported.Add(float64(len(batch)))
		batch = batch[:0]

		s.bus.PublishScanProgress(events.ScanProgress{
			Count:    count,
			LastFile: lastFile,
			Status:   events.StatusProcessing,
		})
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("scan skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks and other irregular entries are never followed.
		if !d.Type().IsRegular() || strings.HasPrefix(name, ".") {
			return nil
		}

		kind := mediatypes.KindForExt(filepath.Ext(name))
		if kind == mediatypes.KindOther {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logging.Warn("scan skipping %s: %v", path, err)
			return nil
		}

		batch = append(batch, database.NewAssetFromPath(path, kind, info.Size()))
		lastSeen = path
		if len(batch) >= batchSize {
			flush(path)
		}
		return nil
	})
	if err != nil {
		logging.Error("scan of %s aborted: %v", root, err)
	}

	flush(lastSeen)

	metrics.ScanDuration.Observe(time.Since(start).Seconds())
	logging.Info("Scan of %s finished: %d files imported in %v", root, count, time.Since(start).Round(time.Millisecond))

	s.bus.PublishScanProgress(events.ScanProgress{
		Count:  count,
		Status: events.StatusFinished,
	})
}
