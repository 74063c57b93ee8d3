package logger

import (
	"io"
	"log/slog"
	"os"
)

const service = "callhub"

// New returns a production-friendly structured logger.
// No business logic should depend on logging implementation details.
func New(appEnv string) *slog.Logger {
	return NewTo(os.Stdout, appEnv)
}

// NewTo is New writing to w.
func NewTo(w io.Writer, appEnv string) *slog.Logger {
	level := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		level = slog.LevelDebug
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", service, "env", appEnv)
}
