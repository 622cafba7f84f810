package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitChunksShortTextIsOneChunk(t *testing.T) {
	t.Parallel()

	chunks := SplitChunks("A short paragraph about sandworms.", 1000)
	require.Len(t, chunks, 1)
	assert.Equal(t, "A short paragraph about sandworms.", chunks[0])
}

func TestSplitChunksEmptyText(t *testing.T) {
	t.Parallel()

	assert.Empty(t, SplitChunks("", 1000))
	assert.Empty(t, SplitChunks("   \n\n\t  ", 1000))
}

func TestSplitChunksPrefersSentenceBoundary(t *testing.T) {
	t.Parallel()

	// The sentence terminator sits 50 bytes past the target size, inside
	// the lookahead window.
	text := strings.Repeat("a", 150) + ". " + strings.Repeat("b", 300)
	chunks := SplitChunks(text, 100)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, strings.Repeat("a", 150)+".", chunks[0])
}

func TestSplitChunksFallsBackToParagraphBoundary(t *testing.T) {
	t.Parallel()

	// No sentence terminator near the target, but a paragraph break is.
	text := strings.Repeat("a", 150) + "\n\n" + strings.Repeat("b", 300)
	chunks := SplitChunks(text, 100)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, strings.Repeat("a", 150), chunks[0])
}

func TestSplitChunksHardCutWithoutBoundary(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", 500)
	chunks := SplitChunks(text, 100)

	require.Len(t, chunks, 5)
	for _, c := range chunks {
		assert.Len(t, c, 100)
	}
}

func TestSplitChunksCoversAllContent(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for range 40 {
		b.WriteString("The spice must flow. Arrakis is the desert planet. ")
	}
	text := b.String()

	chunks := SplitChunks(text, 200)
	require.NotEmpty(t, chunks)

	// Every chunk ends on a sentence boundary and nothing is lost beyond
	// trimmed whitespace.
	total := 0
	for _, c := range chunks {
		assert.True(t, strings.HasSuffix(c, "."), "chunk should end at a sentence: %q", c)
		total += len(c)
	}
	assert.InDelta(t, len(strings.TrimSpace(text)), total, float64(len(chunks)*2))
}
