package database

import "media-library/internal/mediatypes"

// Asset is one row of the catalog. Identity (ID) is assigned by SQLite and
// stable for the row's lifetime; UUID is an opaque token for cross-referencing
// without depending on the integer key. OriginalPath is the natural key used
// for reconciliation with the filesystem.
type Asset struct {
	ID           int64           `json:"id"`
	UUID         string          `json:"uuid"`
	Filename     string          `json:"filename"`
	Extension    string          `json:"extension"`
	OriginalPath string          `json:"original_path"`
	Kind         mediatypes.Kind `json:"kind"`

	ThumbnailPath string  `json:"thumbnail_path,omitempty"`
	DurationSec   float64 `json:"duration_sec"`
	FileSize      int64   `json:"file_size"`

	// Waveform is empty until the waveform generator has run for this asset.
	Waveform []float32 `json:"waveform_data"`

	Metadata Metadata `json:"metadata"`
}

// PendingAsset is the minimal projection handed to an artifact generator.
type PendingAsset struct {
	ID        int64
	Path      string
	Filename  string
	Extension string
}

// Page is one page of catalog query results plus pagination totals.
type Page struct {
	Data        []*Asset `json:"data"`
	TotalItems  int64    `json:"total_items"`
	TotalPages  int      `json:"total_pages"`
	CurrentPage int      `json:"current_page"`
}
