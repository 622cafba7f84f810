package embed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
)

// RetryConfig configures the retry behavior for provider calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for embedding API calls.
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

// executeWithRetry runs fn with exponential backoff. Each attempt passes
// through the rate limiter. Non-retryable errors fail immediately;
// exhausted retries wrap the last error in ErrUnavailable.
func (c *Client) executeWithRetry(ctx context.Context, fn func(context.Context) (*ai.EmbedResponse, error)) (*ai.EmbedResponse, error) {
	var lastErr error
	delay := c.cfg.Retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= c.cfg.Retry.MaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := fn(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryableError(err) {
			return nil, fmt.Errorf("embedding request: %w", err)
		}
		if attempt == c.cfg.Retry.MaxRetries {
			break
		}

		c.logger.Debug("retrying embedding request",
			"attempt", attempt+1,
			"delay", delay,
			"elapsed", time.Since(start),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, c.cfg.Retry.MaxInterval)
		}
	}

	return nil, fmt.Errorf("%w: after %d retries (elapsed: %v): %s",
		ErrUnavailable, c.cfg.Retry.MaxRetries, time.Since(start), lastErr)
}
