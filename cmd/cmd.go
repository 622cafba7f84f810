// Package cmd provides CLI commands for the bookchat backend.
//
// Commands:
//   - serve: HTTP API server with SSE streaming
//   - ingest: chunk, embed, and index book content
//   - threads: inspect and manage conversation threads
//
// Signal handling and graceful shutdown are implemented for all commands
// via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Bushraturk/ragchatbot/internal/log"
)

// Execute is the main entry point for the bookchat CLI.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{
		Level: level,
		JSON:  os.Getenv("LOG_FORMAT") == "json",
	}))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "ingest":
		return runIngest()
	case "threads":
		return runThreads()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("bookchat - RAG chatbot backend for book content")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  bookchat serve [addr]                Start HTTP API server (default: 127.0.0.1:3400)")
	fmt.Println("  bookchat ingest <source-id> <file>   Index a text file under a source ID")
	fmt.Println("  bookchat threads [delete <id>]       List or delete conversation threads")
	fmt.Println("  bookchat --version                   Show version information")
	fmt.Println("  bookchat --help                      Show this help")
	fmt.Println()
	fmt.Println("Ingest flags:")
	fmt.Println("  --replace          Drop existing chunks of the source first")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Required with the gemini provider")
	fmt.Println("  DATABASE_URL       Optional: overrides postgres_* settings")
	fmt.Println("  DEBUG              Optional: enable debug logging")
	fmt.Println("  LOG_FORMAT         Optional: set to \"json\" for JSON logs")
}
