package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Bushraturk/ragchatbot/internal/embed"
	"github.com/Bushraturk/ragchatbot/internal/index"
)

// Embedder embeds chunk batches. *embed.Client satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string, intent embed.Intent) ([][]float32, error)
	Dimension() int
}

// Indexer writes chunks to the vector index. *index.Store satisfies it.
type Indexer interface {
	Upsert(ctx context.Context, chunks []index.Chunk) error
	DeleteSource(ctx context.Context, sourceID string) (int, error)
}

// Report summarizes one ingestion run.
type Report struct {
	SourceID string
	Chunks   int
	// Fallbacks counts chunks indexed with a zero vector because the
	// provider rejected their text. They stay searchable by ID but land
	// at the bottom of every similarity ranking.
	Fallbacks int
	Elapsed   time.Duration
}

// Ingestor splits, embeds, and indexes book content.
//
// Ingestor is safe for concurrent use by multiple goroutines.
type Ingestor struct {
	embedder  Embedder
	indexer   Indexer
	chunkSize int
	logger    *slog.Logger
}

// NewIngestor creates an ingestor. chunkSize <= 0 uses DefaultChunkSize.
func NewIngestor(embedder Embedder, indexer Indexer, chunkSize int, logger *slog.Logger) (*Ingestor, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if indexer == nil {
		return nil, fmt.Errorf("indexer is required")
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		embedder:  embedder,
		indexer:   indexer,
		chunkSize: chunkSize,
		logger:    logger,
	}, nil
}

// IngestText chunks and indexes text under sourceID. Chunk IDs are
// deterministic ("sourceID#ordinal"), so re-ingesting the same source
// updates chunks in place instead of duplicating them.
//
// A provider outage (embed.ErrUnavailable) aborts the run; nothing is
// written. Individual chunks the provider rejects as unembeddable fall
// back to a zero vector rather than sinking the whole book.
func (ing *Ingestor) IngestText(ctx context.Context, sourceID, text string, metadata map[string]any) (*Report, error) {
	if sourceID == "" {
		return nil, fmt.Errorf("source ID is required")
	}

	start := time.Now()
	texts := SplitChunks(text, ing.chunkSize)
	if len(texts) == 0 {
		return nil, fmt.Errorf("source %s: no indexable content", sourceID)
	}

	vectors, fallbacks, err := ing.embedAll(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding source %s: %w", sourceID, err)
	}

	chunks := make([]index.Chunk, len(texts))
	for i, t := range texts {
		ordinal := i + 1
		chunks[i] = index.Chunk{
			ID:        fmt.Sprintf("%s#%d", sourceID, ordinal),
			SourceID:  sourceID,
			Ordinal:   ordinal,
			Content:   t,
			Embedding: vectors[i],
			Metadata:  metadata,
		}
	}

	if err := ing.indexer.Upsert(ctx, chunks); err != nil {
		return nil, fmt.Errorf("indexing source %s: %w", sourceID, err)
	}

	report := &Report{
		SourceID:  sourceID,
		Chunks:    len(chunks),
		Fallbacks: fallbacks,
		Elapsed:   time.Since(start),
	}
	ing.logger.Info("ingested source",
		"source_id", sourceID,
		"chunks", report.Chunks,
		"fallbacks", report.Fallbacks,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

// Replace removes all existing chunks of a source, then ingests text in
// their place. Use when a source shrank; plain IngestText would leave
// stale trailing chunks behind.
func (ing *Ingestor) Replace(ctx context.Context, sourceID, text string, metadata map[string]any) (*Report, error) {
	removed, err := ing.indexer.DeleteSource(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("clearing source %s: %w", sourceID, err)
	}
	ing.logger.Debug("cleared source", "source_id", sourceID, "removed", removed)

	return ing.IngestText(ctx, sourceID, text, metadata)
}

// embedAll embeds every chunk, falling back per chunk when the provider
// rejects its text.
func (ing *Ingestor) embedAll(ctx context.Context, texts []string) (vectors [][]float32, fallbacks int, err error) {
	vectors, err = ing.embedder.Embed(ctx, texts, embed.IntentDocument)
	if err == nil {
		return vectors, 0, nil
	}
	if !errors.Is(err, embed.ErrInvalidInput) {
		return nil, 0, err
	}

	// At least one chunk is unembeddable; retry one by one so only the
	// offenders get the zero-vector fallback.
	vectors = make([][]float32, len(texts))
	for i, t := range texts {
		vecs, embedErr := ing.embedder.Embed(ctx, []string{t}, embed.IntentDocument)
		switch {
		case embedErr == nil:
			vectors[i] = vecs[0]
		case errors.Is(embedErr, embed.ErrInvalidInput):
			ing.logger.Warn("chunk rejected by embedder, using zero vector", "ordinal", i+1)
			vectors[i] = make([]float32, ing.embedder.Dimension())
			fallbacks++
		default:
			return nil, 0, embedErr
		}
	}
	return vectors, fallbacks, nil
}
