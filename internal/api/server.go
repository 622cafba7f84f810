// Package api provides the HTTP REST API for the chatbot backend.
//
// Endpoints:
//
//	POST   /api/chat/stream          - streaming question answering (SSE)
//	POST   /api/threads              - create a conversation thread
//	GET    /api/threads              - list threads
//	GET    /api/threads/{id}         - get a thread
//	GET    /api/threads/{id}/messages - get a thread's transcript
//	PUT    /api/threads/{id}/mode    - switch grounding mode
//	DELETE /api/threads/{id}         - delete a thread
//	GET    /health, /ready           - probes
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Bushraturk/ragchatbot/internal/chat"
	"github.com/Bushraturk/ragchatbot/internal/thread"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:3400"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 30 * time.Second

	// ReadHeaderTimeout bounds request header reads (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is generous: SSE streams stay open for a full answer.
	WriteTimeout = 2 * time.Minute

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 2 * time.Minute
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger     *slog.Logger
	Controller *chat.Controller // Required
	Threads    *thread.Store    // Required
	Pool       *pgxpool.Pool    // Optional: nil disables DB ping in /ready
}

// Server is the HTTP server for the chatbot REST API.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Controller == nil {
		return nil, errors.New("chat controller is required")
	}
	if cfg.Threads == nil {
		return nil, errors.New("thread store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	NewHealthHandler(cfg.Pool, logger).RegisterRoutes(mux)
	NewThreadHandler(cfg.Threads, logger).RegisterRoutes(mux)
	NewChatHandler(cfg.Controller, cfg.Threads, logger).RegisterRoutes(mux)

	return &Server{mux: mux, logger: logger}, nil
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
