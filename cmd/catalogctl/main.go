package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"media-library/internal/database"
	"media-library/internal/mediatypes"
)

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: catalogctl [-db path] <command>

Offline catalog maintenance. The server must not be running against the
same catalog file while this tool is used.

Commands:
  stats    Print asset counts per kind and pending artifact work
  clear    Remove every asset from the catalog

Flags:
  -db path   Catalog file (default $DATA_DIR/library.db, falling back
             to /data/library.db)
`)
}

func defaultDBPath() string {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "/data"
	}
	return filepath.Join(dataDir, "library.db")
}

func main() {
	dbPath := flag.String("db", defaultDBPath(), "catalog file path")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() != 1 {
		printUsage()
		os.Exit(2)
	}

	ctx := context.Background()

	db, err := database.New(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "catalogctl: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := run(ctx, db, flag.Arg(0), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "catalogctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, db *database.Database, command string, out io.Writer) error {
	switch command {
	case "stats":
		return printStats(ctx, db, out)
	case "clear":
		if err := db.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "catalog cleared")
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printStats(ctx context.Context, db *database.Database, out io.Writer) error {
	total, err := db.CountAssets(ctx, "all")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "assets: %d\n", total)

	for _, kind := range []mediatypes.Kind{mediatypes.KindImage, mediatypes.KindVideo, mediatypes.KindAudio} {
		count, err := db.CountAssets(ctx, string(kind))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s: %d\n", kind, count)
	}

	thumbs, err := db.MissingThumbnails(ctx)
	if err != nil {
		return err
	}
	waves, err := db.MissingWaveforms(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "pending thumbnails: %d\n", len(thumbs))
	fmt.Fprintf(out, "pending waveforms: %d\n", len(waves))
	return nil
}
