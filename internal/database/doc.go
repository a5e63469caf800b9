// Package database implements the asset catalog on SQLite.
//
// The catalog is the single source of truth for everything the library
// knows about a media tree: one row per imported file, keyed by its
// absolute path, carrying identity (uuid), classification (kind), size and
// the derived artifacts (thumbnail path, waveform, duration, metadata).
//
// The schema is validated on open by comparing the live column set
// against the expected one; any mismatch discards the file and starts
// over. Rows are cheap to rebuild from a scan, so there is no migration
// machinery.
package database
