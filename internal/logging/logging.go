// Package logging configures the process-wide slog.Logger.
package logging

import (
	"log/slog"
	"os"
)

// Setup installs a JSON handler in production and a human-readable text
// handler when verbose/debug logging is requested, matching the teacher's
// `--verbose` flag convention.
func Setup(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	var handler slog.Handler
	if verbose {
		level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
