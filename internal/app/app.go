// Package app provides application initialization and dependency wiring.
//
// App is the container that holds every long-lived component: the Genkit
// instance, the database pool, the vector index, thread persistence, and
// the chat pipeline built on top of them.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Bushraturk/ragchatbot/internal/chat"
	"github.com/Bushraturk/ragchatbot/internal/config"
	"github.com/Bushraturk/ragchatbot/internal/embed"
	"github.com/Bushraturk/ragchatbot/internal/index"
	"github.com/Bushraturk/ragchatbot/internal/ingest"
	"github.com/Bushraturk/ragchatbot/internal/retrieval"
	"github.com/Bushraturk/ragchatbot/internal/thread"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Core services
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	// Pipeline components
	Embed      *embed.Client
	Index      *index.Store
	Threads    *thread.Store
	Retrieval  *retrieval.Engine
	Controller *chat.Controller
	Ingestor   *ingest.Ingestor
}

// Close releases all resources held by the application.
func (a *App) Close() error {
	if a.DBPool != nil {
		a.DBPool.Close()
		a.logger().Info("database pool closed")
	}
	return nil
}

func (a *App) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
