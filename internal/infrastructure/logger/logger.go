package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// New creates a new zerolog logger based on config.
func New(cfg Config) zerolog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(cfg Config, out io.Writer) zerolog.Logger {
	output := out

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	level := parseLevel(cfg.Level)

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Caller().
		Logger()
}

// ContextKey is the type for context keys
type ContextKey string

const (
	// JobIDKey is the context key for job IDs
	JobIDKey ContextKey = "job_id"
	// CloseDateKey is the context key for the date being closed or reconciled
	CloseDateKey ContextKey = "close_date"
)

// WithContext stores l on ctx.
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// FromContext returns the logger stored on ctx, or fallback, enriched with
// the job and date fields found on ctx.
func FromContext(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	l := fallback
	if stored := zerolog.Ctx(ctx); stored != nil && stored.GetLevel() != zerolog.Disabled {
		l = *stored
	}

	c := l.With()
	if jobID, ok := ctx.Value(JobIDKey).(string); ok && jobID != "" {
		c = c.Str("job_id", jobID)
	}
	if date, ok := ctx.Value(CloseDateKey).(string); ok && date != "" {
		c = c.Str("close_date", date)
	}
	return c.Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
