package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/Bushraturk/ragchatbot/internal/app"
	"github.com/Bushraturk/ragchatbot/internal/config"
)

// runThreads lists or deletes conversation threads.
//
//	bookchat threads              list recent threads
//	bookchat threads delete <id>  delete a thread and its messages
func runThreads() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Warn("shutdown error", "error", closeErr)
		}
	}()

	args := []string{}
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}

	if len(args) >= 1 && args[0] == "delete" {
		if len(args) != 2 {
			return fmt.Errorf("usage: bookchat threads delete <id>")
		}
		return deleteThread(ctx, a, args[1])
	}

	return listThreads(ctx, a)
}

func listThreads(ctx context.Context, a *app.App) error {
	threads, err := a.Threads.List(ctx, 100, 0)
	if err != nil {
		return fmt.Errorf("listing threads: %w", err)
	}

	if len(threads) == 0 {
		fmt.Println("No threads found.")
		return nil
	}

	fmt.Printf("%-36s  %-13s  %8s  %s\n", "ID", "MODE", "MESSAGES", "UPDATED")
	for _, t := range threads {
		fmt.Printf("%-36s  %-13s  %8d  %s\n",
			t.ID, t.Mode, t.MessageCount, t.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func deleteThread(ctx context.Context, a *app.App, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid thread ID %q: %w", rawID, err)
	}

	if err := a.Threads.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting thread: %w", err)
	}

	fmt.Printf("Deleted thread %s\n", id)
	return nil
}
