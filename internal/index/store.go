package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// upsertChunkSQL overwrites on primary key collision so re-ingesting a
// source is idempotent.
const upsertChunkSQL = `INSERT INTO chunks (id, source_id, ordinal, content, embedding, metadata)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE
	SET content = EXCLUDED.content,
	    embedding = EXCLUDED.embedding,
	    metadata = EXCLUDED.metadata,
	    updated_at = now()`

// searchSQL ranks by cosine distance; updated_at DESC breaks exact-distance
// ties in favor of the most recently indexed chunk.
const searchSQL = `SELECT id, source_id, ordinal, content, metadata, updated_at,
	       1 - (embedding <=> $1) AS similarity
	FROM chunks
	ORDER BY embedding <=> $1 ASC, updated_at DESC
	LIMIT $2`

// searchSourceSQL is searchSQL restricted to a single source.
const searchSourceSQL = `SELECT id, source_id, ordinal, content, metadata, updated_at,
	       1 - (embedding <=> $1) AS similarity
	FROM chunks
	WHERE source_id = $3
	ORDER BY embedding <=> $1 ASC, updated_at DESC
	LIMIT $2`

// Store manages the chunk index backed by PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool      *pgxpool.Pool
	dimension int
	logger    *slog.Logger
}

// NewStore creates a chunk Store. dimension is the vector width the chunks
// table was created with; every embedding passing through the store is
// validated against it.
func NewStore(pool *pgxpool.Pool, dimension int, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, dimension: dimension, logger: logger}, nil
}

// Dimension returns the vector width the store validates against.
func (s *Store) Dimension() int {
	return s.dimension
}

// checkDimension validates a single vector against the configured width.
func (s *Store) checkDimension(vec []float32) error {
	if len(vec) != s.dimension {
		return fmt.Errorf("%w: got %d, index expects %d",
			ErrDimensionMismatch, len(vec), s.dimension)
	}
	return nil
}

// Upsert writes chunks to the index. All-or-nothing: the batch runs in a
// single transaction, and a dimension mismatch anywhere rejects the whole
// batch before any row is written.
func (s *Store) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	// Validate the whole batch up front so a bad chunk in the middle cannot
	// leave a partial write.
	for i, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk %d: id is required", i)
		}
		if c.Content == "" {
			return fmt.Errorf("chunk %d (%s): content is required", i, c.ID)
		}
		if err := s.checkDimension(c.Embedding); err != nil {
			return fmt.Errorf("chunk %d (%s): %w", i, c.ID, err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	for _, c := range chunks {
		if err := upsertChunk(ctx, tx, c); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunk batch: %w", err)
	}

	s.logger.Debug("upserted chunks", "count", len(chunks))
	return nil
}

// Search returns up to topK chunks nearest to the query embedding, ordered
// by cosine similarity descending. An empty index yields an empty slice,
// not an error.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]Snippet, error) {
	if err := s.checkDimension(embedding); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []Snippet{}, nil
	}

	snippets, err := searchChunks(ctx, s.pool, searchSQL, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	return snippets, nil
}

// SearchSource is Search restricted to chunks of one source.
func (s *Store) SearchSource(ctx context.Context, embedding []float32, topK int, sourceID string) ([]Snippet, error) {
	if sourceID == "" {
		return s.Search(ctx, embedding, topK)
	}
	if err := s.checkDimension(embedding); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []Snippet{}, nil
	}

	snippets, err := searchChunks(ctx, s.pool, searchSourceSQL, pgvector.NewVector(embedding), topK, sourceID)
	if err != nil {
		return nil, fmt.Errorf("searching chunks of source %s: %w", sourceID, err)
	}
	return snippets, nil
}

// Delete removes a single chunk by ID. Deleting a chunk that does not
// exist is not an error.
func (s *Store) Delete(ctx context.Context, chunkID string) error {
	if chunkID == "" {
		return fmt.Errorf("chunk ID is required")
	}

	if _, err := s.pool.Exec(ctx,
		`DELETE FROM chunks WHERE id = $1`, chunkID); err != nil {
		return fmt.Errorf("deleting chunk %s: %w", chunkID, err)
	}
	return nil
}

// DeleteSource removes every chunk of a source. Returns the number of
// chunks removed.
func (s *Store) DeleteSource(ctx context.Context, sourceID string) (int, error) {
	if sourceID == "" {
		return 0, fmt.Errorf("source ID is required")
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM chunks WHERE source_id = $1`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for source %s: %w", sourceID, err)
	}
	return int(tag.RowsAffected()), nil
}

// Count returns the total number of indexed chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// VerifySchema checks at startup that the chunks table's vector column was
// created with the configured dimension. Catches the silent failure mode
// where the embedder model changed but the table did not.
func (s *Store) VerifySchema(ctx context.Context) error {
	var typmod int
	err := s.pool.QueryRow(ctx,
		`SELECT atttypmod FROM pg_attribute
		 WHERE attrelid = 'chunks'::regclass AND attname = 'embedding'`,
	).Scan(&typmod)
	if err != nil {
		return fmt.Errorf("reading chunks.embedding column type: %w", err)
	}

	// For the vector type, atttypmod is the declared dimension.
	if typmod != s.dimension {
		return fmt.Errorf("%w: chunks.embedding is vector(%d), config expects %d",
			ErrDimensionMismatch, typmod, s.dimension)
	}
	return nil
}

// upsertChunk writes one chunk through q, the batch transaction inside
// Upsert.
func upsertChunk(ctx context.Context, q querier, c Chunk) error {
	metadata := c.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	if _, err := q.Exec(ctx, upsertChunkSQL,
		c.ID, c.SourceID, c.Ordinal, c.Content,
		pgvector.NewVector(c.Embedding), metadata,
	); err != nil {
		return fmt.Errorf("upserting chunk %s: %w", c.ID, err)
	}
	return nil
}

// searchChunks runs a ranked chunk query through q and scans the result.
func searchChunks(ctx context.Context, q querier, sql string, args ...any) ([]Snippet, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSnippets(rows)
}

// scanSnippets reads Snippet structs from pgx.Rows (searchSQL column set).
func scanSnippets(rows pgx.Rows) ([]Snippet, error) {
	snippets := []Snippet{}
	for rows.Next() {
		var sn Snippet
		if err := rows.Scan(
			&sn.ID, &sn.SourceID, &sn.Ordinal, &sn.Content,
			&sn.Metadata, &sn.UpdatedAt, &sn.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scanning snippet: %w", err)
		}
		snippets = append(snippets, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snippets: %w", err)
	}
	return snippets, nil
}
