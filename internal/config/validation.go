package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
)

// Validation errors, usable with errors.Is().
var (
	ErrMissingAPIKey      = errors.New("GEMINI_API_KEY environment variable is required for the gemini provider")
	ErrUnknownProvider    = errors.New("provider must be one of: gemini, ollama")
	ErrInvalidOllamaHost  = errors.New("ollama_host must be a valid http(s) URL")
	ErrInvalidDimension   = errors.New("embedder_dimension must be positive")
	ErrInvalidTopK        = errors.New("retrieval.top_k must be positive")
	ErrInvalidSimilarity  = errors.New("retrieval.min_similarity must be within [-1, 1]")
	ErrInvalidBudget      = errors.New("retrieval.context_budget_chars must be positive")
	ErrInvalidHistory     = errors.New("chat.history_limit and chat.history_char_budget must be positive")
	ErrInvalidTemperature = errors.New("temperature must be within [0, 2]")
	ErrMissingPostgres    = errors.New("postgres connection settings are incomplete")
	ErrInvalidRate        = errors.New("requests_per_second must not be negative")
)

// Validate checks the configuration for correctness. It is called by Load
// after all sources are merged; callers constructing a Config directly
// (tests, mostly) should call it themselves.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return ErrMissingAPIKey
		}
	case ProviderOllama:
		u, err := url.Parse(c.OllamaHost)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidOllamaHost, c.OllamaHost)
		}
	default:
		return fmt.Errorf("%w: got %q", ErrUnknownProvider, c.Provider)
	}

	if c.EmbedderDimension <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidDimension, c.EmbedderDimension)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: got %g", ErrInvalidTemperature, c.Temperature)
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTopK, c.Retrieval.TopK)
	}
	if c.Retrieval.MinSimilarity < -1 || c.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("%w: got %g", ErrInvalidSimilarity, c.Retrieval.MinSimilarity)
	}
	if c.Retrieval.ContextBudgetChars <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidBudget, c.Retrieval.ContextBudgetChars)
	}

	if c.Chat.HistoryLimit <= 0 || c.Chat.HistoryCharBudget <= 0 {
		return ErrInvalidHistory
	}

	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: got %g", ErrInvalidRate, c.RequestsPerSecond)
	}

	if c.PostgresHost == "" || c.PostgresUser == "" || c.PostgresDBName == "" ||
		c.PostgresPort <= 0 || c.PostgresPort > 65535 {
		return ErrMissingPostgres
	}

	return nil
}
