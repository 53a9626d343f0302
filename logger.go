package semsphere

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with substrate-specific helpers so all
// operations log consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler. A nil handler
// defaults to a text handler on stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that emits JSON records to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NewTextLogger creates a Logger that emits human-readable text.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NoopLogger creates a Logger that discards everything.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // unreachable
	}))}
}

// LogIngest logs one document ingestion.
func (l *Logger) LogIngest(ctx context.Context, document string, tokens, newCompositions int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "ingest failed",
			"document", document,
			"tokens", tokens,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "ingest completed",
			"document", document,
			"tokens", tokens,
			"new_compositions", newCompositions,
		)
	}
}

// LogQuery logs one query execution.
func (l *Logger) LogQuery(ctx context.Context, kind string, results int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"kind", kind,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "query completed",
			"kind", kind,
			"results", results,
		)
	}
}

// LogProjection logs one spectral projection batch.
func (l *Logger) LogProjection(ctx context.Context, vectors int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "projection failed",
			"vectors", vectors,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "projection completed",
			"vectors", vectors,
		)
	}
}

// LogObserve logs one edge observation.
func (l *Logger) LogObserve(ctx context.Context, edgeType string, applied bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "observe failed",
			"type", edgeType,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "observe completed",
			"type", edgeType,
			"applied", applied,
		)
	}
}

// LogSnapshot logs a snapshot save or load.
func (l *Logger) LogSnapshot(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot completed",
			"name", name,
		)
	}
}
