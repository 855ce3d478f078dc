package segpool

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with segpool-specific context.
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

// WithPool tags the logger with the record type a pool stores.
func (l *Logger) WithPool(recordType string) *Logger {
	return &Logger{
		Logger: l.Logger.With("pool", recordType),
	}
}

// WithHandle adds a handle field to the logger.
func (l *Logger) WithHandle(h Handle) *Logger {
	return &Logger{
		Logger: l.Logger.With("handle", uint32(h)),
	}
}

// LogGrow logs the allocation of a new segment.
func (l *Logger) LogGrow(ctx context.Context, exponent uint8, capacity uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "segment growth failed",
			"exponent", exponent,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "segment allocated",
		"exponent", exponent,
		"capacity", capacity,
	)
}

// LogSweep logs a reclamation sweep.
func (l *Logger) LogSweep(ctx context.Context, holes, scanned int, duration time.Duration) {
	l.DebugContext(ctx, "sweep completed",
		"holes", holes,
		"scanned", scanned,
		"duration", duration,
	)
}

// LogInvalidAccess logs a dereference of an unallocated handle.
func (l *Logger) LogInvalidAccess(ctx context.Context, h Handle) {
	l.WithHandle(h).DebugContext(ctx, "invalid handle access")
}

// LogStaleReference logs a Ref whose slot was freed after it was taken.
func (l *Logger) LogStaleReference(ctx context.Context, r Ref, current uint32) {
	l.WithHandle(r.Handle).DebugContext(ctx, "stale reference",
		"gen", r.Gen,
		"current_gen", current,
	)
}

// LogSnapshot logs a snapshot save.
func (l *Logger) LogSnapshot(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"name", name,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "snapshot saved",
		"name", name,
	)
}

// LogRestore logs a snapshot load.
func (l *Logger) LogRestore(ctx context.Context, name string, watermark uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot restore failed",
			"name", name,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "snapshot restored",
		"name", name,
		"watermark", watermark,
	)
}
