package steparena

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with steparena-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithInstance adds the computation instance ID.
func (l *Logger) WithInstance(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("instance", id),
	}
}

// WithProgram adds the program name.
func (l *Logger) WithProgram(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("program", name),
	}
}

// WithStep adds a step number field.
func (l *Logger) WithStep(step uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("step", step),
	}
}

// LogStep logs the outcome of one step.
func (l *Logger) LogStep(ctx context.Context, step uint64, st Status, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "step failed",
			"step", step,
			"cost", st.Cost,
			"duration", d,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "step completed",
			"step", step,
			"cost", st.Cost,
			"done", st.Done,
			"duration", d,
		)
	}
}

// LogYield logs a step that checkpointed on low budget.
func (l *Logger) LogYield(ctx context.Context, step uint64, cost, remaining int64) {
	l.DebugContext(ctx, "step yielded",
		"step", step,
		"cost", cost,
		"remaining", remaining,
	)
}

// LogRecovery logs the rollback of an interrupted commit.
func (l *Logger) LogRecovery(ctx context.Context, journal string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "journal recovery failed",
			"journal", journal,
			"error", err,
		)
	} else {
		l.WarnContext(ctx, "rolled back interrupted commit",
			"journal", journal,
		)
	}
}

// LogIngest logs input ingestion progress.
func (l *Logger) LogIngest(ctx context.Context, written, size int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "input append failed",
			"written", written,
			"size", size,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "input appended",
			"written", written,
			"size", size,
		)
	}
}

// LogTeardown logs the removal of a computation's state.
func (l *Logger) LogTeardown(ctx context.Context, reclaimed int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "teardown failed",
			"reclaimed", reclaimed,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "teardown completed",
			"reclaimed", reclaimed,
		)
	}
}

// LogMeasure logs the cost of a measured region.
func (l *Logger) LogMeasure(ctx context.Context, region string, cost int64) {
	l.DebugContext(ctx, "measured region",
		"region", region,
		"cost", cost,
	)
}
