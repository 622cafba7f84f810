package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// RetryConfig configures the retry behavior for model calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups error substrings by category.
// Matched case-insensitively against err.Error().
//
// NOTE: String matching because Genkit and provider SDKs do not expose
// typed errors for transient failures. Re-evaluate if Genkit adds
// structured error types.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// retryableError reports whether err is transient and should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, sub := range group {
			if strings.Contains(errStr, sub) {
				return true
			}
		}
	}
	return false
}

// generateWithRetry calls the model with exponential backoff. Each attempt
// passes through the rate limiter. Retrying is only safe while nothing has
// streamed to the client yet; after the first delta a failure is final.
func (o *Orchestrator) generateWithRetry(ctx context.Context, opts []ai.GenerateOption, streamed func() bool) (*ai.ModelResponse, error) {
	var lastErr error
	delay := o.cfg.Retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= o.cfg.Retry.MaxRetries; attempt++ {
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := genkit.Generate(ctx, o.g, opts...)
		if err == nil {
			o.logger.Debug("model call succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return resp, nil
		}
		lastErr = err

		if !retryableError(err) || streamed() {
			return nil, fmt.Errorf("model call: %w", err)
		}
		if attempt == o.cfg.Retry.MaxRetries {
			break
		}

		o.logger.Debug("retrying model call",
			"attempt", attempt+1,
			"delay", delay,
			"elapsed", time.Since(start),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, o.cfg.Retry.MaxInterval)
		}
	}

	return nil, fmt.Errorf("model call after %d retries (elapsed: %v): %w",
		o.cfg.Retry.MaxRetries, time.Since(start), lastErr)
}
