package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-library/internal/logging"
	"media-library/internal/mediatypes"
	"media-library/internal/metrics"
)

// Default timeout for single-statement operations
const defaultTimeout = 5 * time.Second

// expectedColumns is the exact column set of the assets table. Schema
// validation compares the live table against this set; any difference
// (added, removed or renamed columns) triggers destructive recreation of
// the catalog file. There is no forward migration path.
var expectedColumns = []string{
	"id",
	"uuid",
	"filename",
	"extension",
	"original_path",
	"kind",
	"thumbnail_path",
	"duration_sec",
	"file_size",
	"waveform_data",
	"metadata",
}

const schema = `
CREATE TABLE IF NOT EXISTS assets (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid            TEXT NOT NULL UNIQUE,
	filename        TEXT NOT NULL,
	extension       TEXT NOT NULL,
	original_path   TEXT NOT NULL UNIQUE,
	kind            TEXT NOT NULL,
	thumbnail_path  TEXT,
	duration_sec    REAL DEFAULT 0,
	file_size       INTEGER NOT NULL,
	waveform_data   TEXT,
	metadata        TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_assets_path_kind
	ON assets(original_path, kind);

CREATE INDEX IF NOT EXISTS idx_assets_kind ON assets(kind);
CREATE INDEX IF NOT EXISTS idx_assets_filename ON assets(filename COLLATE NOCASE);
`

// Database is the catalog store: the single source of truth shared by the
// scanner, the change watcher, the artifact generators and the query
// service. All access goes through one connection guarded by the mutex;
// callers never see the underlying *sql.DB.
type Database struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// New opens (or creates) the catalog at dbPath. If the existing file's
// assets table does not exactly match the expected column set, the file is
// discarded and recreated from scratch.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Catalog path: %s", dbPath)

	db, err := openSQLite(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	valid, err := schemaMatches(ctx, db)
	if err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("failed to validate schema: %w", err)
	}

	if !valid {
		logging.Warn("Catalog schema mismatch detected, recreating %s (all rows discarded)", dbPath)
		metrics.SchemaRecreations.Inc()
		closeQuietly(db)

		if err := removeDatabaseFiles(dbPath); err != nil {
			return nil, fmt.Errorf("failed to remove stale catalog: %w", err)
		}

		db, err = openSQLite(ctx, dbPath)
		if err != nil {
			return nil, err
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info("Catalog initialized at %s", dbPath)
	return &Database{db: db, dbPath: dbPath}, nil
}

func openSQLite(ctx context.Context, dbPath string) (*sql.DB, error) {
	// busy_timeout keeps short writer overlaps from surfacing as
	// "database is locked" errors.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	// One shared connection; concurrency is handled by our own lock.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("failed to connect to catalog: %w", err)
	}

	return db, nil
}

// schemaMatches compares the live column set of the assets table against
// expectedColumns. A missing table counts as a match: CREATE TABLE IF NOT
// EXISTS will build it.
func schemaMatches(ctx context.Context, db *sql.DB) (bool, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info(assets)")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return false, err
	}

	if len(existing) == 0 {
		return true, nil
	}

	if len(existing) != len(expectedColumns) {
		return false, nil
	}
	for _, col := range expectedColumns {
		if !existing[col] {
			return false, nil
		}
	}
	return true, nil
}

func removeDatabaseFiles(dbPath string) error {
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func closeQuietly(db *sql.DB) {
	if err := db.Close(); err != nil {
		logging.Error("failed to close catalog: %v", err)
	}
}

// Close closes the catalog connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Path returns the catalog file path.
func (d *Database) Path() string {
	return d.dbPath
}

// Batch is an open batch transaction. Each batch carries its own start
// time, so concurrent batches record independent duration metrics.
type Batch struct {
	tx    *sql.Tx
	start time.Time
}

// BeginBatch starts a transaction for batch operations. The caller must
// finish it with EndBatch. The write lock is held only while the
// transaction begins, not for its whole lifetime; holders are expected to
// keep batches small (the scanner commits every 50 rows) so other writers
// and readers interleave.
func (d *Database) BeginBatch() (*Batch, error) {
	d.mu.Lock()
	start := time.Now()

	// Transaction lifetime is managed by EndBatch, not a timeout context.
	tx, err := d.db.BeginTx(context.Background(), nil)
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}

	return &Batch{tx: tx, start: start}, nil
}

// EndBatch commits the batch, or rolls it back when err is non-nil.
// A partial batch is never observable: either every row of the batch
// commits or none do.
func (d *Database) EndBatch(b *Batch, err error) error {
	duration := time.Since(b.start).Seconds()

	if err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(duration)
		if rbErr := b.tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(duration)
	return b.tx.Commit()
}

// InsertAsset inserts a new asset inside a batch transaction, ignoring the
// row when the path is already cataloged. Re-scanning an unchanged tree is
// therefore idempotent. A missing UUID is assigned here.
func (d *Database) InsertAsset(b *Batch, a *Asset) error {
	if a.UUID == "" {
		a.UUID = uuid.NewString()
	}

	result, err := b.tx.ExecContext(context.Background(), `
		INSERT OR IGNORE INTO assets
			(uuid, filename, extension, original_path, kind, thumbnail_path, file_size, duration_sec, waveform_data, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, '[]', '{}')`,
		a.UUID, a.Filename, a.Extension, a.OriginalPath, string(a.Kind), nullable(a.ThumbnailPath), a.FileSize,
	)
	if err == nil {
		if rows, _ := result.RowsAffected(); rows > 0 {
			metrics.DBQueryTotal.WithLabelValues("insert_asset", "success").Inc()
		}
	}
	return err
}

// UpsertByPath inserts the asset if its path is new, otherwise refreshes
// file_size on the existing row. Used by the change watcher for
// create/modify events; artifact columns are never touched.
func (d *Database) UpsertByPath(ctx context.Context, a *Asset) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_by_path", start, err) }()

	if a.UUID == "" {
		a.UUID = uuid.NewString()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO assets
			(uuid, filename, extension, original_path, kind, thumbnail_path, file_size, duration_sec, waveform_data, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, '[]', '{}')
		ON CONFLICT(original_path) DO UPDATE SET
			file_size = excluded.file_size`,
		a.UUID, a.Filename, a.Extension, a.OriginalPath, string(a.Kind), nullable(a.ThumbnailPath), a.FileSize,
	)
	return err
}

// RenamePath updates the row keyed by oldPath to the renamed file's path,
// name, extension, kind and size. The row id, thumbnail and waveform are
// preserved. Returns false when no row existed for oldPath.
func (d *Database) RenamePath(ctx context.Context, oldPath string, a *Asset) (bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("rename_path", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, `
		UPDATE assets
		SET filename = ?, extension = ?, original_path = ?, kind = ?, file_size = ?
		WHERE original_path = ?`,
		a.Filename, a.Extension, a.OriginalPath, string(a.Kind), a.FileSize, oldPath,
	)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	return rows > 0, err
}

// DeleteByPath removes the row for path. Deleting an uncataloged path is a
// silent no-op, not an error.
func (d *Database) DeleteByPath(ctx context.Context, path string) (bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_by_path", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, "DELETE FROM assets WHERE original_path = ?", path)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	return rows > 0, err
}

// DeleteUnder removes every asset whose path lies under dir, returning the
// removed paths. Used when a watched directory disappears: the filesystem
// reports one event for the directory, not one per file inside it.
func (d *Database) DeleteUnder(ctx context.Context, dir string) ([]string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_under", start, err) }()

	pattern := escapeLike(dir+string(os.PathSeparator)) + "%"

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		`SELECT original_path FROM assets WHERE original_path LIKE ? ESCAPE '\'`, pattern)
	if err != nil {
		return nil, err
	}

	var paths []string
	for rows.Next() {
		var p string
		if err = rows.Scan(&p); err != nil {
			rows.Close()
			return nil, err
		}
		paths = append(paths, p)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	if len(paths) == 0 {
		return nil, nil
	}

	_, err = d.db.ExecContext(ctx,
		`DELETE FROM assets WHERE original_path LIKE ? ESCAPE '\'`, pattern)
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// SetThumbnail records a generated thumbnail path and the image metadata
// discovered while decoding.
func (d *Database) SetThumbnail(ctx context.Context, id int64, thumbPath string, meta Metadata) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_thumbnail", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx,
		"UPDATE assets SET thumbnail_path = ?, metadata = ? WHERE id = ?",
		thumbPath, encodeMetadata(meta), id,
	)
	return err
}

// SetWaveform records a generated waveform, the track duration and the
// audio metadata discovered while decoding.
func (d *Database) SetWaveform(ctx context.Context, id int64, waveform []float32, durationSec float64, meta Metadata) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_waveform", start, err) }()

	data, err := json.Marshal(waveform)
	if err != nil {
		return fmt.Errorf("failed to encode waveform: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx,
		"UPDATE assets SET waveform_data = ?, duration_sec = ?, metadata = ? WHERE id = ?",
		string(data), durationSec, encodeMetadata(meta), id,
	)
	return err
}

// Clear removes every asset and resets the id sequence.
func (d *Database) Clear(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("clear", start, err) }()

	b, err := d.BeginBatch()
	if err != nil {
		return err
	}

	if _, err = b.tx.ExecContext(ctx, "DELETE FROM assets"); err != nil {
		return d.EndBatch(b, err)
	}
	if _, err = b.tx.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name='assets'"); err != nil {
		return d.EndBatch(b, err)
	}

	return d.EndBatch(b, nil)
}

// GetByPath retrieves a single asset by its original path.
func (d *Database) GetByPath(ctx context.Context, path string) (*Asset, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_by_path", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, selectColumns+" FROM assets WHERE original_path = ?", path)

	a, err := scanAsset(row)
	if err != nil {
		return nil, err
	}
	return a, nil
}

const selectColumns = `SELECT id, uuid, filename, extension, original_path, kind,
	thumbnail_path, duration_sec, file_size, waveform_data, metadata`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*Asset, error) {
	var (
		a         Asset
		kind      string
		thumbnail sql.NullString
		waveform  sql.NullString
		metadata  sql.NullString
	)

	err := row.Scan(
		&a.ID, &a.UUID, &a.Filename, &a.Extension, &a.OriginalPath, &kind,
		&thumbnail, &a.DurationSec, &a.FileSize, &waveform, &metadata,
	)
	if err != nil {
		return nil, err
	}

	a.Kind = mediatypes.Kind(kind)
	if thumbnail.Valid {
		a.ThumbnailPath = thumbnail.String
	}

	a.Waveform = []float32{}
	if waveform.Valid && waveform.String != "" {
		// A corrupt waveform payload reads as empty, same as "not generated".
		if err := json.Unmarshal([]byte(waveform.String), &a.Waveform); err != nil {
			a.Waveform = []float32{}
		}
	}

	a.Metadata = decodeMetadata(metadata.String)
	return &a, nil
}

// recordQuery records catalog query metrics.
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// splitNameExt derives the stored filename and extension from the last
// path segment. The extension is stored lowercase without the dot.
func splitNameExt(path string) (filename, ext string) {
	filename = path
	if i := strings.LastIndexByte(path, os.PathSeparator); i >= 0 {
		filename = path[i+1:]
	}
	if i := strings.LastIndexByte(filename, '.'); i > 0 {
		ext = strings.ToLower(filename[i+1:])
	}
	return filename, ext
}

// NewAssetFromPath builds an Asset for a freshly observed file. SVG files
// get their own path as thumbnail: browsers render them natively at any
// size, so they never enter the raster thumbnail queue.
func NewAssetFromPath(path string, kind mediatypes.Kind, size int64) *Asset {
	filename, ext := splitNameExt(path)
	a := &Asset{
		Filename:     filename,
		Extension:    ext,
		OriginalPath: path,
		Kind:         kind,
		FileSize:     size,
		Waveform:     []float32{},
		Metadata:     NoMetadata(),
	}
	if ext == "svg" {
		a.ThumbnailPath = path
	}
	return a
}
