package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"convert_bot/internal/storage"
	"convert_bot/migrations"
)

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/bot.db"), "path to the bookkeeping database")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: migrate [-db path] <command>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  up          Create or upgrade the bookkeeping tables")
		fmt.Fprintln(os.Stderr, "  down        Roll back one version")
		fmt.Fprintln(os.Stderr, "  status      Show migration status and bookkeeping totals")
		fmt.Fprintln(os.Stderr, "  version     Show current schema version")
		fmt.Fprintln(os.Stderr, "  totals      Show comments seen, replies and reuploads")
		fmt.Fprintln(os.Stderr, "  reset       Drop all bookkeeping tables")
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Setup(); err != nil {
		log.Fatalf("setup: %v", err)
	}

	ctx := context.Background()
	cmd := args[0]
	switch cmd {
	case "up":
		err = goose.UpContext(ctx, db, ".")
	case "down":
		err = goose.DownContext(ctx, db, ".")
	case "status":
		if err = goose.StatusContext(ctx, db, "."); err == nil {
			err = printTotals(ctx, db, os.Stdout)
		}
	case "version":
		err = goose.VersionContext(ctx, db, ".")
	case "totals":
		err = printTotals(ctx, db, os.Stdout)
	case "reset":
		err = goose.ResetContext(ctx, db, ".")
	default:
		log.Fatalf("unknown command: %s", cmd)
	}

	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

// printTotals writes the bookkeeping counters. A database without the schema
// has nothing to report.
func printTotals(ctx context.Context, db *sql.DB, w io.Writer) error {
	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get version: %w", err)
	}
	if version == 0 {
		_, err := fmt.Fprintln(w, "no bookkeeping tables yet, run \"migrate up\"")
		return err
	}

	t, err := storage.FromDB(db).Totals(ctx)
	if err != nil {
		return err
	}
	last := "never"
	if t.LastUpdated != nil {
		last = t.LastUpdated.Format(time.RFC3339)
	}
	_, err = fmt.Fprintf(w, "comments: %d\nreplies: %d\nreuploads: %d\nlast comment: %s\n",
		t.Comments, t.Replies, t.Reuploads, last)
	return err
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
