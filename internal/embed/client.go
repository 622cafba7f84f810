package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// DefaultBatchSize bounds how many texts go to the provider per request.
const DefaultBatchSize = 64

// Config tunes the client. Zero values fall back to defaults.
type Config struct {
	// Dimension is the expected vector width. Responses with a different
	// width are rejected.
	Dimension int

	// BatchSize bounds texts per provider request.
	BatchSize int

	// RequestsPerSecond throttles provider calls. Zero disables throttling.
	RequestsPerSecond float64

	// Retry controls backoff for transient provider errors.
	Retry RetryConfig
}

// Client embeds text through a Genkit embedder.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	embedder ai.Embedder
	cfg      Config
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewClient creates an embedding client.
func NewClient(embedder ai.Embedder, cfg Config, logger *slog.Logger) (*Client, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		embedder: embedder,
		cfg:      cfg,
		limiter:  limiter,
		logger:   logger,
	}, nil
}

// Dimension returns the vector width the client validates against.
func (c *Client) Dimension() int {
	return c.cfg.Dimension
}

// Embed returns one vector per input text, in input order. All texts in one
// call share the same intent.
//
// Empty or whitespace-only texts are rejected with ErrInvalidInput before
// any provider call. Transient provider failures are retried with
// exponential backoff; exhausted retries return ErrUnavailable.
func (c *Client) Embed(ctx context.Context, texts []string, intent Intent) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts given", ErrInvalidInput)
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: text %d is empty or whitespace", ErrInvalidInput, i)
		}
	}

	start := time.Now()
	vectors := make([][]float32, 0, len(texts))

	for begin := 0; begin < len(texts); begin += c.cfg.BatchSize {
		end := min(begin+c.cfg.BatchSize, len(texts))

		batch, err := c.embedBatch(ctx, texts[begin:end], intent)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	c.logger.Debug("embedded texts",
		"count", len(texts),
		"intent", intent,
		"elapsed", time.Since(start),
	)
	return vectors, nil
}

// EmbedOne embeds a single text.
func (c *Client) EmbedOne(ctx context.Context, text string, intent Intent) ([]float32, error) {
	vecs, err := c.Embed(ctx, []string{text}, intent)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// embedBatch sends one provider request with retry.
func (c *Client) embedBatch(ctx context.Context, texts []string, intent Intent) ([][]float32, error) {
	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	dim := int32(c.cfg.Dimension)
	req := &ai.EmbedRequest{
		Input: docs,
		Options: &genai.EmbedContentConfig{
			TaskType:             intent.taskType(),
			OutputDimensionality: &dim,
		},
	}

	resp, err := c.executeWithRetry(ctx, func(ctx context.Context) (*ai.EmbedResponse, error) {
		return c.embedder.Embed(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("provider returned %d embeddings for %d texts",
			len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) != c.cfg.Dimension {
			return nil, fmt.Errorf("provider returned %d-dimensional vector, expected %d",
				len(e.Embedding), c.cfg.Dimension)
		}
		vectors[i] = e.Embedding
	}
	return vectors, nil
}
