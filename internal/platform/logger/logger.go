package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. Text output locally, structured enough
// for log shippers; swap the handler here rather than at call sites.
func New() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
