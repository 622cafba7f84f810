// Package ingest splits book content into chunks, embeds them, and writes
// them to the index.
package ingest

import "strings"

const (
	// DefaultChunkSize is the target chunk length in bytes.
	DefaultChunkSize = 1000

	// boundaryLookahead is how far past the target a chunk may grow to end
	// on a sentence or paragraph boundary.
	boundaryLookahead = 200
)

// SplitChunks splits text into chunks of roughly chunkSize bytes. A chunk
// prefers to end just after a sentence terminator within the lookahead
// window; failing that, at a paragraph break; failing both, it cuts at the
// target size. Whitespace-only chunks are dropped.
func SplitChunks(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := boundary(text, start+chunkSize)

		chunk := strings.TrimSpace(text[start:min(end, len(text))])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		start = end
	}
	return chunks
}

// boundary picks the cut point for a chunk nominally ending at target.
func boundary(text string, target int) int {
	if target >= len(text) {
		return len(text)
	}

	limit := min(target+boundaryLookahead, len(text))

	for i := target; i < limit; i++ {
		switch text[i] {
		case '.', '!', '?':
			return i + 1
		}
	}
	for i := target; i < limit; i++ {
		if text[i] == '\n' && i > 0 && text[i-1] == '\n' {
			return i + 1
		}
	}
	return target
}
