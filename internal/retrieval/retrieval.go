// Package retrieval resolves the context for answering a question,
// either by searching the chunk index or by pinning a fixed passage.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Bushraturk/ragchatbot/internal/embed"
	"github.com/Bushraturk/ragchatbot/internal/index"
	"github.com/Bushraturk/ragchatbot/internal/thread"
)

// ErrRetrievalFailed wraps infrastructure failures (embedding, search) so
// callers can distinguish "no relevant content" from "could not look".
var ErrRetrievalFailed = errors.New("retrieval: failed")

// PinnedRefPrefix marks context refs produced in selected-text mode.
const PinnedRefPrefix = "pinned:"

// PinnedRef derives the context ref recorded for a pinned passage. The
// ref carries a digest of the passage so a persisted turn stays
// traceable to the exact span that grounded it even after the thread's
// pinned text is changed or cleared.
func PinnedRef(text string) string {
	sum := sha256.Sum256([]byte(text))
	return PinnedRefPrefix + hex.EncodeToString(sum[:8])
}

// Embedder embeds a query for the search path.
// Interface defined by the consumer; *embed.Client satisfies it.
type Embedder interface {
	EmbedOne(ctx context.Context, text string, intent embed.Intent) ([]float32, error)
}

// Searcher finds nearest chunks for a query embedding.
// *index.Store satisfies it.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, topK int) ([]index.Snippet, error)
}

// Config tunes the search path.
type Config struct {
	// TopK is how many neighbors to fetch before filtering.
	TopK int

	// MinSimilarity drops snippets scoring below it.
	MinSimilarity float64

	// BudgetChars caps total snippet characters packed into the context.
	BudgetChars int
}

// Context is the resolved grounding material for one question.
type Context struct {
	Snippets []index.Snippet
}

// Empty reports whether no grounding material was found. An empty context
// in full-book mode means the question must be refused, not guessed at.
func (c *Context) Empty() bool {
	return len(c.Snippets) == 0
}

// Refs returns the snippet IDs, for persisting alongside the answer.
func (c *Context) Refs() []string {
	refs := make([]string, len(c.Snippets))
	for i, s := range c.Snippets {
		refs[i] = s.ID
	}
	return refs
}

// Engine resolves context per thread mode.
//
// Engine is safe for concurrent use by multiple goroutines.
type Engine struct {
	embedder Embedder
	searcher Searcher
	cfg      Config
	logger   *slog.Logger
}

// NewEngine creates a retrieval engine.
func NewEngine(embedder Embedder, searcher Searcher, cfg Config, logger *slog.Logger) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if cfg.TopK <= 0 {
		return nil, fmt.Errorf("top-k must be positive, got %d", cfg.TopK)
	}
	if cfg.BudgetChars <= 0 {
		return nil, fmt.Errorf("budget must be positive, got %d", cfg.BudgetChars)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{embedder: embedder, searcher: searcher, cfg: cfg, logger: logger}, nil
}

// Retrieve resolves the context for a question.
//
// In selected-text mode the pinned passage is the entire context: no
// embedding, no search, similarity reported as 1.0. In full-book mode the
// question is embedded, the index searched, weak hits filtered out, and
// survivors packed greedily into the character budget in rank order.
func (e *Engine) Retrieve(ctx context.Context, mode thread.Mode, pinnedText, query string) (*Context, error) {
	if mode == thread.ModeSelectedText {
		return &Context{Snippets: []index.Snippet{{
			ID:         PinnedRef(pinnedText),
			Content:    pinnedText,
			Similarity: 1.0,
		}}}, nil
	}

	vec, err := e.embedder.EmbedOne(ctx, query, embed.IntentQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %w", ErrRetrievalFailed, err)
	}

	hits, err := e.searcher.Search(ctx, vec, e.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("%w: searching index: %w", ErrRetrievalFailed, err)
	}

	packed := pack(filter(hits, e.cfg.MinSimilarity), e.cfg.BudgetChars)

	e.logger.Debug("retrieved context",
		"hits", len(hits),
		"packed", len(packed),
		"budget", e.cfg.BudgetChars,
	)
	return &Context{Snippets: packed}, nil
}

// filter drops snippets below the similarity floor.
func filter(hits []index.Snippet, minSimilarity float64) []index.Snippet {
	kept := hits[:0:0]
	for _, h := range hits {
		if h.Similarity >= minSimilarity {
			kept = append(kept, h)
		}
	}
	return kept
}

// pack keeps snippets in rank order until the next one would overflow the
// character budget. Snippets are never split: a truncated passage can
// invert its own meaning.
func pack(hits []index.Snippet, budget int) []index.Snippet {
	packed := make([]index.Snippet, 0, len(hits))
	used := 0
	for _, h := range hits {
		if used+len(h.Content) > budget {
			break
		}
		used += len(h.Content)
		packed = append(packed, h)
	}
	return packed
}
