package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	slog.SetDefault(New(os.Getenv("ENVIRONMENT"), os.Stdout))
}

// New builds a logger for the given environment writing to w
func New(environment string, w io.Writer) *slog.Logger {
	var handler slog.Handler
	if strings.EqualFold(environment, "production") {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}
	return slog.New(handler)
}

// WithRequest returns a logger with request context fields attached.
func WithRequest(method, endpoint, userID string) *slog.Logger {
	logger := slog.With(
		"method", method,
		"endpoint", endpoint,
	)
	if userID != "" {
		logger = logger.With("user_id", userID)
	}
	return logger
}

// WithJob returns a logger scoped to a background job.
func WithJob(name string) *slog.Logger {
	return slog.With("job", name)
}
