package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/Bushraturk/ragchatbot/internal/api"
	"github.com/Bushraturk/ragchatbot/internal/app"
	"github.com/Bushraturk/ragchatbot/internal/config"
)

// runServe initializes and starts the HTTP API server.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	addr, err := parseServeAddr()
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()
	logger.Info("starting HTTP API server", "version", AppVersion)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	srv, err := api.NewServer(api.ServerConfig{
		Logger:     logger,
		Controller: a.Controller,
		Threads:    a.Threads,
		Pool:       a.DBPool,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	return srv.Run(ctx, addr)
}
