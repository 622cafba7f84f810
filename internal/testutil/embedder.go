package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockEmbedder provides deterministic embedding vectors for testing.
//
// By default each input maps to a vector derived from its SHA-256 hash, so
// the same text always embeds identically. Explicit vectors can be set per
// text for precise cosine similarity control, and errors can be injected to
// exercise retry and failure paths.
//
// Thread-safe for concurrent use.
type MockEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	dim      int
	calls    int
	failures int
	failErr  error
	lastOpts any
}

// NewMockEmbedder creates a mock embedder producing dim-wide vectors.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{
		vectors: make(map[string][]float32),
		dim:     dim,
	}
}

// SetVector registers an explicit vector for a given text.
func (e *MockEmbedder) SetVector(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[text] = vec
}

// FailTimes makes the next n Embed calls return err.
func (e *MockEmbedder) FailTimes(n int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = n
	e.failErr = err
}

// CallCount returns the number of Embed calls made so far.
func (e *MockEmbedder) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// LastOptions returns the provider options of the most recent Embed call,
// or nil if none was made.
func (e *MockEmbedder) LastOptions() any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastOpts
}

// RegisterEmbedder registers the mock as a Genkit embedder named
// "mock/test-embedder" and returns its reference.
func (e *MockEmbedder) RegisterEmbedder(g *genkit.Genkit) ai.Embedder {
	return genkit.DefineEmbedder(g, "mock/test-embedder", &ai.EmbedderOptions{
		Label:      "Mock Test Embedder",
		Dimensions: e.dim,
	}, e.embed)
}

func (e *MockEmbedder) embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	e.mu.Lock()
	e.calls++
	e.lastOpts = req.Options
	if e.failures > 0 {
		e.failures--
		err := e.failErr
		e.mu.Unlock()
		return nil, err
	}
	e.mu.Unlock()

	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		embeddings[i] = &ai.Embedding{
			Embedding: e.vectorFor(documentText(doc)),
		}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func (e *MockEmbedder) vectorFor(text string) []float32 {
	e.mu.Lock()
	if v, ok := e.vectors[text]; ok {
		e.mu.Unlock()
		return v
	}
	e.mu.Unlock()
	return deterministicVector(text, e.dim)
}

// documentText extracts all text content from a Document's parts.
func documentText(doc *ai.Document) string {
	var sb strings.Builder
	for _, p := range doc.Content {
		if p.Kind == ai.PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// deterministicVector generates a unit vector from the SHA-256 of text.
func deterministicVector(text string, dim int) []float32 {
	hash := sha256.Sum256([]byte(text))
	vec := make([]float32, dim)

	for i := range vec {
		idx := (i * 4) % len(hash)
		bits := binary.LittleEndian.Uint32([]byte{
			hash[idx%32],
			hash[(idx+1)%32],
			hash[(idx+2)%32],
			hash[(idx+3)%32],
		})
		vec[i] = (float32(bits)/float32(math.MaxUint32))*2 - 1
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}
