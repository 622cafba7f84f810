// Package index stores and searches embedded book chunks in
// PostgreSQL + pgvector.
package index

import (
	"errors"
	"time"
)

// ErrDimensionMismatch is returned when a vector's dimension does not match
// the dimension the chunks table was created with.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Chunk is one indexable unit of book content.
type Chunk struct {
	// ID is deterministic: "<source_id>#<ordinal>". Re-upserting the same
	// chunk overwrites rather than duplicates.
	ID        string
	SourceID  string
	Ordinal   int
	Content   string
	Embedding []float32
	Metadata  map[string]any
}

// Snippet is a search hit: chunk content plus its cosine similarity to the
// query, in [-1, 1], higher is closer.
type Snippet struct {
	ID         string
	SourceID   string
	Ordinal    int
	Content    string
	Similarity float64
	Metadata   map[string]any
	UpdatedAt  time.Time
}
