package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Bushraturk/ragchatbot/db"
	"github.com/Bushraturk/ragchatbot/internal/chat"
	"github.com/Bushraturk/ragchatbot/internal/config"
	"github.com/Bushraturk/ragchatbot/internal/embed"
	"github.com/Bushraturk/ragchatbot/internal/index"
	"github.com/Bushraturk/ragchatbot/internal/ingest"
	"github.com/Bushraturk/ragchatbot/internal/retrieval"
	"github.com/Bushraturk/ragchatbot/internal/thread"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, embedder, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g
	a.Embedder = embedder

	embedClient, err := embed.NewClient(embedder, embed.Config{
		Dimension:         cfg.EmbedderDimension,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embed client: %w", err)
	}
	a.Embed = embedClient

	indexStore, err := index.NewStore(pool, cfg.EmbedderDimension, logger)
	if err != nil {
		return nil, fmt.Errorf("creating index store: %w", err)
	}
	if err := indexStore.VerifySchema(ctx); err != nil {
		return nil, fmt.Errorf("verifying index schema: %w", err)
	}
	a.Index = indexStore

	threadStore, err := thread.NewStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating thread store: %w", err)
	}
	a.Threads = threadStore

	engine, err := retrieval.NewEngine(embedClient, indexStore, retrieval.Config{
		TopK:          cfg.Retrieval.TopK,
		MinSimilarity: cfg.Retrieval.MinSimilarity,
		BudgetChars:   cfg.Retrieval.ContextBudgetChars,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating retrieval engine: %w", err)
	}
	a.Retrieval = engine

	orch, err := chat.NewOrchestrator(g, nil, engine, threadStore, chat.Config{
		ModelName:         providerModelName(cfg),
		Temperature:       cfg.Temperature,
		HistoryLimit:      cfg.Chat.HistoryLimit,
		HistoryCharBudget: cfg.Chat.HistoryCharBudget,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	controller, err := chat.NewController(orch, threadStore, logger)
	if err != nil {
		return nil, fmt.Errorf("creating chat controller: %w", err)
	}
	a.Controller = controller

	ingestor, err := ingest.NewIngestor(embedClient, indexStore, ingest.DefaultChunkSize, logger)
	if err != nil {
		return nil, fmt.Errorf("creating ingestor: %w", err)
	}
	a.Ingestor = ingestor

	return a, nil
}

// provideGenkit initializes Genkit with the configured AI provider and
// returns the embedder the provider registered.
// Supports gemini (default) and ollama providers.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, ai.Embedder, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = "gemini"
	}

	switch provider {
	case "ollama":
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)
		return g, ollama.Embedder(g, cfg.OllamaHost), nil

	default: // "gemini"
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with gemini provider")
		}
		embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
		if embedder == nil {
			return nil, nil, fmt.Errorf("embedder %q not found for gemini provider", cfg.EmbedderModel)
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
		return g, embedder, nil
	}
}

// providerModelName qualifies the configured model name with its plugin
// prefix so Genkit can resolve it.
func providerModelName(cfg *config.Config) string {
	switch cfg.Provider {
	case "ollama":
		return "ollama/" + cfg.ModelName
	default:
		return "googleai/" + cfg.ModelName
	}
}

// provideDBPool runs migrations and creates a PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
