package cmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Bushraturk/ragchatbot/internal/app"
	"github.com/Bushraturk/ragchatbot/internal/config"
)

// maxIngestFileSize bounds the size of a single ingested file (64 MiB).
const maxIngestFileSize = 64 << 20

// runIngest indexes a text file under a source ID.
//
//	bookchat ingest [--replace] <source-id> <file>
func runIngest() error {
	ingestFlags := flag.NewFlagSet("ingest", flag.ContinueOnError)
	ingestFlags.SetOutput(os.Stderr)
	replace := ingestFlags.Bool("replace", false, "Drop existing chunks of the source first")

	args := []string{}
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}
	if err := ingestFlags.Parse(args); err != nil {
		return fmt.Errorf("parsing ingest flags: %w", err)
	}
	rest := ingestFlags.Args()
	if len(rest) != 2 {
		return fmt.Errorf("usage: bookchat ingest [--replace] <source-id> <file>")
	}
	sourceID, path := rest[0], rest[1]

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if info.Size() > maxIngestFileSize {
		return fmt.Errorf("file %s is too large (%d bytes, max %d)", path, info.Size(), maxIngestFileSize)
	}
	content, err := os.ReadFile(path) // #nosec G304 -- path is an operator-supplied CLI argument
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Warn("shutdown error", "error", closeErr)
		}
	}()

	metadata := map[string]any{"filename": filepath.Base(path)}

	ingest := a.Ingestor.IngestText
	if *replace {
		ingest = a.Ingestor.Replace
	}
	report, err := ingest(ctx, sourceID, string(content), metadata)
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", path, err)
	}

	fmt.Printf("Indexed %q: %d chunks in %s\n", report.SourceID, report.Chunks, report.Elapsed.Round(time.Millisecond))
	if report.Fallbacks > 0 {
		fmt.Printf("Warning: %d chunks were indexed with zero vectors (unembeddable content)\n", report.Fallbacks)
	}
	return nil
}
