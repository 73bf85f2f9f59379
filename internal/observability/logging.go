// Package observability provides logging and metrics.
package observability

import (
	"log/slog"
	"os"
)

// NewLogger returns a JSON slog logger writing to stdout.
// component is attached to every record so merge-engine, router and
// mutation-API logs can be separated downstream.
func NewLogger(component string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler).With(slog.String("component", component))
}

// NopLogger returns a logger that discards everything. Used in tests.
func NopLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
