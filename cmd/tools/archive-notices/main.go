// Package main implements the archive-notices CLI. It exports notices that
// were read before a cutoff to a gzip-compressed JSON Lines file, then
// deletes them from the database in the same batches it wrote.
//
// Examples:
//
//	archive-notices -older-than 720h -out notices.jsonl.gz
//	archive-notices -older-than 2160h -dry-run
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"

	"noticebox/internal/config"
	"noticebox/internal/db"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		olderThan = flag.Duration("older-than", 30*24*time.Hour, "archive notices read longer ago than this")
		out       = flag.String("out", "", "output path (default notices-<date>.jsonl.gz)")
		batchSize = flag.Int("batch", 500, "rows fetched and deleted per round trip")
		dryRun    = flag.Bool("dry-run", false, "write the archive but keep the rows")
		timeout   = flag.Duration("timeout", 5*time.Minute, "overall deadline")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()
	repo := db.NewNoticeRepository(pool)

	cutoff := time.Now().UTC().Add(-*olderThan)
	path := *out
	if path == "" {
		path = fmt.Sprintf("notices-%s.jsonl.gz", time.Now().UTC().Format("2006-01-02"))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating archive file: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	enc := json.NewEncoder(gz)

	logger.Info("archiving read notices",
		"cutoff", cutoff.Format(time.RFC3339),
		"output", path,
		"dry_run", *dryRun,
	)

	var archived, deleted int64
	for {
		page, err := repo.ListReadBefore(ctx, cutoff, *batchSize)
		if err != nil {
			return fmt.Errorf("listing read notices: %w", err)
		}
		if len(page) == 0 {
			break
		}

		ids := make([]string, 0, len(page))
		for _, n := range page {
			if err := enc.Encode(n); err != nil {
				return fmt.Errorf("writing archive record: %w", err)
			}
			ids = append(ids, n.ID)
		}
		archived += int64(len(page))

		if *dryRun {
			// Without deletion the next page would repeat these rows.
			if len(page) == *batchSize {
				logger.Warn("dry run stops after one batch; rerun without -dry-run to archive everything")
			}
			break
		}

		// Flush before deleting so a failure here cannot lose rows that
		// are already gone from the database.
		if err := gz.Flush(); err != nil {
			return fmt.Errorf("flushing archive: %w", err)
		}

		n, err := repo.DeleteByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("deleting archived notices: %w", err)
		}
		deleted += n
	}

	if err := gz.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing archive file: %w", err)
	}

	logger.Info("archive complete", "archived", archived, "deleted", deleted, "output", path)
	return nil
}
