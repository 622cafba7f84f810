package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that discards all output. Use in
// tests to reduce noise; equivalent to log.NewNop() from internal/log.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
