package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bushraturk/ragchatbot/internal/embed"
	"github.com/Bushraturk/ragchatbot/internal/index"
	"github.com/Bushraturk/ragchatbot/internal/testutil"
)

const testDim = 4

// fakeEmbedder embeds deterministically, rejecting texts listed in bad.
type fakeEmbedder struct {
	bad         map[string]bool
	unavailable bool
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string, _ embed.Intent) ([][]float32, error) {
	if f.unavailable {
		return nil, embed.ErrUnavailable
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.bad[t] {
			return nil, fmt.Errorf("%w: text %d", embed.ErrInvalidInput, i)
		}
		out[i] = []float32{float32(len(t)), 1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return testDim }

// fakeIndexer records upserts in memory.
type fakeIndexer struct {
	mu      sync.Mutex
	chunks  map[string]index.Chunk
	deleted []string
	err     error
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{chunks: make(map[string]index.Chunk)}
}

func (f *fakeIndexer) Upsert(_ context.Context, chunks []index.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, c := range chunks {
		f.chunks[c.ID] = c
	}
	return nil
}

func (f *fakeIndexer) DeleteSource(_ context.Context, sourceID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, sourceID)
	n := 0
	for id, c := range f.chunks {
		if c.SourceID == sourceID {
			delete(f.chunks, id)
			n++
		}
	}
	return n, nil
}

func newTestIngestor(t *testing.T, emb Embedder, idx Indexer) *Ingestor {
	t.Helper()

	ing, err := NewIngestor(emb, idx, 100, testutil.DiscardLogger())
	require.NoError(t, err)
	return ing
}

func TestIngestTextAssignsDeterministicIDs(t *testing.T) {
	t.Parallel()

	idx := newFakeIndexer()
	ing := newTestIngestor(t, &fakeEmbedder{}, idx)

	text := strings.Repeat("The spice must flow. ", 20)
	report, err := ing.IngestText(context.Background(), "dune", text, map[string]any{"title": "Dune"})
	require.NoError(t, err)

	assert.Equal(t, "dune", report.SourceID)
	assert.Equal(t, len(idx.chunks), report.Chunks)
	assert.Zero(t, report.Fallbacks)

	for ordinal := 1; ordinal <= report.Chunks; ordinal++ {
		id := fmt.Sprintf("dune#%d", ordinal)
		c, ok := idx.chunks[id]
		require.True(t, ok, "missing chunk %s", id)
		assert.Equal(t, "dune", c.SourceID)
		assert.Equal(t, ordinal, c.Ordinal)
		assert.Len(t, c.Embedding, testDim)
		assert.Equal(t, "Dune", c.Metadata["title"])
	}
}

func TestIngestTextIsIdempotent(t *testing.T) {
	t.Parallel()

	idx := newFakeIndexer()
	ing := newTestIngestor(t, &fakeEmbedder{}, idx)
	text := strings.Repeat("Fear is the mind-killer. ", 20)

	first, err := ing.IngestText(context.Background(), "dune", text, nil)
	require.NoError(t, err)
	second, err := ing.IngestText(context.Background(), "dune", text, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Chunks, second.Chunks)
	assert.Len(t, idx.chunks, first.Chunks)
}

func TestIngestTextRejectsEmptyContent(t *testing.T) {
	t.Parallel()

	ing := newTestIngestor(t, &fakeEmbedder{}, newFakeIndexer())

	_, err := ing.IngestText(context.Background(), "dune", "   \n ", nil)
	assert.Error(t, err)

	_, err = ing.IngestText(context.Background(), "", "content", nil)
	assert.Error(t, err)
}

func TestIngestTextZeroVectorFallback(t *testing.T) {
	t.Parallel()

	// Each part is longer than the chunk size, so every chunk ends at a
	// part's sentence terminator; mark the middle one unembeddable.
	part1 := strings.Repeat("a", 109) + "."
	part2 := strings.Repeat("b", 109) + "."
	part3 := strings.Repeat("c", 109) + "."
	text := part1 + " " + part2 + " " + part3

	emb := &fakeEmbedder{bad: map[string]bool{part2: true}}
	idx := newFakeIndexer()
	ing := newTestIngestor(t, emb, idx)

	report, err := ing.IngestText(context.Background(), "dune", text, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, 1, report.Fallbacks)

	zero := make([]float32, testDim)
	assert.Equal(t, zero, idx.chunks["dune#2"].Embedding)
	assert.NotEqual(t, zero, idx.chunks["dune#1"].Embedding)
}

func TestIngestTextAbortsWhenProviderUnavailable(t *testing.T) {
	t.Parallel()

	idx := newFakeIndexer()
	ing := newTestIngestor(t, &fakeEmbedder{unavailable: true}, idx)

	_, err := ing.IngestText(context.Background(), "dune", "Some content here.", nil)
	assert.ErrorIs(t, err, embed.ErrUnavailable)
	assert.Empty(t, idx.chunks)
}

func TestReplaceClearsSourceFirst(t *testing.T) {
	t.Parallel()

	idx := newFakeIndexer()
	ing := newTestIngestor(t, &fakeEmbedder{}, idx)

	long := strings.Repeat("Old content sentence. ", 30)
	_, err := ing.IngestText(context.Background(), "dune", long, nil)
	require.NoError(t, err)
	before := len(idx.chunks)

	report, err := ing.Replace(context.Background(), "dune", "New, much shorter text.", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"dune"}, idx.deleted)
	assert.Equal(t, 1, report.Chunks)
	assert.Len(t, idx.chunks, 1)
	assert.Less(t, len(idx.chunks), before)
}
