package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"media-library/internal/mediatypes"
)

const (
	defaultPageSize = 20
	maxPageSize     = 500
)

// ListOptions narrows a catalog page query. Zero values mean "first page,
// default size, every kind, no text filter".
type ListOptions struct {
	Page     int
	PageSize int
	Kind     string
	Query    string
}

// whereBuilder accumulates AND-ed predicates with their positional args.
type whereBuilder struct {
	conds []string
	args  []any
}

func (w *whereBuilder) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *whereBuilder) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// escapeLike escapes LIKE wildcards so a user token matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func buildFilter(opts ListOptions) *whereBuilder {
	w := &whereBuilder{}

	if opts.Kind != "" && opts.Kind != "all" {
		w.add("kind = ?", opts.Kind)
	}

	// Every whitespace-separated token must match somewhere in the
	// filename or the path. "foo bar" matches "foobar.png" but not a file
	// containing only one of the tokens.
	for _, token := range strings.Fields(opts.Query) {
		pattern := "%" + escapeLike(token) + "%"
		w.add(`(filename LIKE ? ESCAPE '\' OR original_path LIKE ? ESCAPE '\')`, pattern, pattern)
	}

	return w
}

// ListAssets returns one page of assets matching opts, in stable catalog
// order (ascending id). The page envelope carries totals computed against
// the same filter, so total_pages stays consistent with the data slice.
func (d *Database) ListAssets(ctx context.Context, opts ListOptions) (*Page, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_assets", start, err) }()

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = defaultPageSize
	}
	if opts.PageSize > maxPageSize {
		opts.PageSize = maxPageSize
	}

	w := buildFilter(opts)

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var total int64
	err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM assets"+w.clause(), w.args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count assets: %w", err)
	}

	totalPages := int((total + int64(opts.PageSize) - 1) / int64(opts.PageSize))

	page := &Page{
		Data:        []*Asset{},
		TotalItems:  total,
		TotalPages:  totalPages,
		CurrentPage: opts.Page,
	}

	offset := (opts.Page - 1) * opts.PageSize
	args := append(w.args, opts.PageSize, offset)

	rows, err := d.db.QueryContext(ctx,
		selectColumns+" FROM assets"+w.clause()+" ORDER BY id ASC LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, scanErr := scanAsset(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		page.Data = append(page.Data, a)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return page, nil
}

// CountAssets counts cataloged assets, optionally restricted to one kind.
// kind "" or "all" counts everything.
func (d *Database) CountAssets(ctx context.Context, kind string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("count_assets", start, err) }()

	w := &whereBuilder{}
	if kind != "" && kind != "all" {
		w.add("kind = ?", kind)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var count int64
	err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM assets"+w.clause(), w.args...).Scan(&count)
	return count, err
}

// MissingThumbnails lists image assets with no thumbnail yet, oldest
// first. SVG files never appear: they are recorded with their original
// path at insert time and need no raster thumbnail.
func (d *Database) MissingThumbnails(ctx context.Context) ([]*PendingAsset, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("missing_thumbnails", start, err) }()

	pending, err := d.pending(ctx, `
		SELECT id, original_path, filename, extension FROM assets
		WHERE kind = ? AND (thumbnail_path IS NULL OR thumbnail_path = '')
		ORDER BY id ASC`,
		string(mediatypes.KindImage),
	)
	return pending, err
}

// MissingWaveforms lists audio assets with no waveform yet, oldest first.
func (d *Database) MissingWaveforms(ctx context.Context) ([]*PendingAsset, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("missing_waveforms", start, err) }()

	pending, err := d.pending(ctx, `
		SELECT id, original_path, filename, extension FROM assets
		WHERE kind = ? AND (waveform_data IS NULL OR waveform_data = '' OR waveform_data = '[]')
		ORDER BY id ASC`,
		string(mediatypes.KindAudio),
	)
	return pending, err
}

func (d *Database) pending(ctx context.Context, query string, args ...any) ([]*PendingAsset, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []*PendingAsset
	for rows.Next() {
		p := &PendingAsset{}
		if err := rows.Scan(&p.ID, &p.Path, &p.Filename, &p.Extension); err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}
