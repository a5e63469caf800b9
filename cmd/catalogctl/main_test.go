package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"media-library/internal/database"
	"media-library/internal/mediatypes"
)

func setupTestDB(t *testing.T) *database.Database {
	t.Helper()

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test catalog: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db *database.Database, path string, kind mediatypes.Kind) {
	t.Helper()
	if err := db.UpsertByPath(context.Background(), database.NewAssetFromPath(path, kind, 1)); err != nil {
		t.Fatalf("seed %s: %v", path, err)
	}
}

func TestPrintUsage(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("printUsage panicked: %v", r)
		}
	}()
	printUsage()
}

func TestRunStats(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	seed(t, db, "/media/a.png", mediatypes.KindImage)
	seed(t, db, "/media/b.png", mediatypes.KindImage)
	seed(t, db, "/media/c.mp3", mediatypes.KindAudio)

	var out strings.Builder
	if err := run(context.Background(), db, "stats", &out); err != nil {
		t.Fatalf("run(stats) error = %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"assets: 3",
		"image: 2",
		"audio: 1",
		"video: 0",
		"pending thumbnails: 2",
		"pending waveforms: 1",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("stats output missing %q:\n%s", want, got)
		}
	}
}

func TestRunClear(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	seed(t, db, "/media/a.png", mediatypes.KindImage)

	var out strings.Builder
	if err := run(context.Background(), db, "clear", &out); err != nil {
		t.Fatalf("run(clear) error = %v", err)
	}

	count, err := db.CountAssets(context.Background(), "all")
	if err != nil {
		t.Fatalf("CountAssets() error = %v", err)
	}
	if count != 0 {
		t.Errorf("count after clear = %d, want 0", count)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)

	var out strings.Builder
	if err := run(context.Background(), db, "bogus", &out); err == nil {
		t.Error("run(bogus) succeeded, want error")
	}
}
