// Package logging configures log/slog for campusetl and carries loggers
// through contexts. Run loggers are tagged with table and run_id; request
// loggers pick up chi's request ID.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// New builds a logger writing to w. Format "json" selects the JSON handler;
// anything else is text. Unknown levels mean info.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Setup installs a stderr logger as the slog default. Stdout stays free for
// command output.
func Setup(level, format string) *slog.Logger {
	logger := New(os.Stderr, level, format)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

type loggerKey struct{}

// NewContext returns a context carrying logger. FromContext starts from it
// instead of the default logger.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the context's logger, or the default one, tagged
// with the chi request ID when there is one.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		logger = l
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	return logger
}

// WithRun returns a context and logger tagged with a pipeline run.
// Every stage logs through the returned logger so one run can be followed
// across stages.
func WithRun(ctx context.Context, table, runID string) (context.Context, *slog.Logger) {
	logger := FromContext(ctx).With("table", table, "run_id", runID)
	return NewContext(ctx, logger), logger
}
