package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/Bushraturk/ragchatbot/internal/retrieval"
	"github.com/Bushraturk/ragchatbot/internal/thread"
)

// Retriever resolves grounding context for a question.
// *retrieval.Engine satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, mode thread.Mode, pinnedText, query string) (*retrieval.Context, error)
}

// HistoryStore loads the recent transcript for the session window.
// *thread.Store satisfies it.
type HistoryStore interface {
	Recent(ctx context.Context, threadID uuid.UUID, limit int) ([]*thread.Message, error)
}

// Config tunes the orchestrator.
type Config struct {
	// ModelName overrides the default model registered with Genkit.
	ModelName string

	// Temperature for generation. Kept low: grounded answering is not a
	// creative task.
	Temperature float64

	// HistoryLimit bounds prior messages included per turn.
	HistoryLimit int

	// HistoryCharBudget bounds total history characters; oldest dropped
	// first.
	HistoryCharBudget int

	// RequestsPerSecond throttles provider calls. Zero disables throttling.
	RequestsPerSecond float64

	// Retry controls backoff for transient provider errors.
	Retry RetryConfig
}

// Result is the outcome of one answered turn.
//
// When Answer returns an error, Result is still non-nil and Answer holds
// whatever partial text was streamed before the failure, so the caller can
// persist the interrupted turn.
type Result struct {
	Answer      string
	ContextRefs []string
	Refused     bool
}

// Orchestrator turns a question into a grounded, streamed answer:
// retrieve context, build the confined prompt, stream the model, refuse
// outright when nothing grounds the question.
//
// Orchestrator is safe for concurrent use by multiple goroutines.
type Orchestrator struct {
	g         *genkit.Genkit
	model     ai.Model
	retriever Retriever
	history   HistoryStore
	cfg       Config
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewOrchestrator creates an orchestrator. model may be nil when
// cfg.ModelName names a model registered with g.
func NewOrchestrator(g *genkit.Genkit, model ai.Model, retriever Retriever, history HistoryStore, cfg Config, logger *slog.Logger) (*Orchestrator, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if model == nil && cfg.ModelName == "" {
		return nil, fmt.Errorf("a model or model name is required")
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if history == nil {
		return nil, fmt.Errorf("history store is required")
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
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

	return &Orchestrator{
		g:         g,
		model:     model,
		retriever: retriever,
		history:   history,
		cfg:       cfg,
		limiter:   limiter,
		logger:    logger,
	}, nil
}

// Answer runs one turn: resolve context, then either refuse or stream a
// grounded answer. onDelta receives each text fragment as the model
// produces it; returning an error from onDelta aborts generation.
//
// When no context survives retrieval, the refusal text is the whole
// answer and the model is never invoked.
func (o *Orchestrator) Answer(ctx context.Context, t *thread.Thread, question string, onDelta func(string) error) (*Result, error) {
	if strings.TrimSpace(question) == "" {
		return &Result{}, ErrEmptyQuestion
	}

	rc, err := o.retriever.Retrieve(ctx, t.Mode, t.PinnedText, question)
	if err != nil {
		return &Result{}, fmt.Errorf("resolving context: %w", err)
	}

	if rc.Empty() {
		// Nothing grounds this question. The refusal is fixed text, not a
		// model output: the model cannot be allowed to decide whether to
		// hallucinate.
		o.logger.Debug("refusing ungrounded question", "thread_id", t.ID)
		return &Result{Answer: RefusalText, ContextRefs: []string{}, Refused: true}, nil
	}

	refs := rc.Refs()
	result := &Result{ContextRefs: refs}

	recent, err := o.history.Recent(ctx, t.ID, o.cfg.HistoryLimit)
	if err != nil {
		return result, fmt.Errorf("loading history: %w", err)
	}

	messages := windowMessages(recent, o.cfg.HistoryLimit, o.cfg.HistoryCharBudget)
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(question)))

	// Track what has already reached the client: once anything streamed,
	// a retry would duplicate output, so failures become final.
	var streamed atomic.Bool
	var partial strings.Builder

	opts := []ai.GenerateOption{
		ai.WithSystem(buildSystemPrompt(rc)),
		ai.WithMessages(messages...),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature: genai.Ptr(float32(o.cfg.Temperature)),
		}),
		ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			text := chunk.Text()
			if text == "" {
				return nil
			}
			streamed.Store(true)
			partial.WriteString(text)
			if onDelta != nil {
				return onDelta(text)
			}
			return nil
		}),
	}
	if o.model != nil {
		opts = append(opts, ai.WithModel(o.model))
	} else {
		opts = append(opts, ai.WithModelName(o.cfg.ModelName))
	}

	start := time.Now()
	resp, err := o.generateWithRetry(ctx, opts, streamed.Load)
	if err != nil {
		result.Answer = partial.String()
		return result, fmt.Errorf("generating answer: %w", err)
	}

	result.Answer = resp.Text()
	o.logger.Debug("answered question",
		"thread_id", t.ID,
		"context_refs", len(refs),
		"answer_chars", len(result.Answer),
		"elapsed", time.Since(start),
	)
	return result, nil
}
