// Package logger builds the zerolog loggers used by every mailrelay binary
// and carries correlation ids through request and SMTP session contexts.
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options selects level, encoding and destination. Config sections convert
// into it so this package stays free of config imports.
type Options struct {
	Level string
	// Format is "json" (default) or "console".
	Format string
	// Output is "stdout" (default), "stderr" or "file".
	Output string
	// Service, when set, is stamped on every event.
	Service string
	File    FileConfig
}

type ctxKey int

const (
	loggerKey ctxKey = iota
	correlationKey
)

// CorrelationField is the event field carrying a correlation id.
const CorrelationField = "correlation_id"

// ParseLevel parses level, falling back to info for empty or unknown names.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// New builds a logger from opts.
func New(opts Options) zerolog.Logger {
	var w io.Writer
	switch opts.Output {
	case "file":
		w = NewFileWriter(opts.File)
	case "stderr":
		w = os.Stderr
	default:
		w = os.Stdout
	}
	if opts.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: opts.Output == "file"}
	}

	c := zerolog.New(w).Level(ParseLevel(opts.Level)).With().Timestamp()
	if opts.Service != "" {
		c = c.Str("service", opts.Service)
	}
	return c.Logger()
}

// NewCorrelationID returns a fresh random id.
func NewCorrelationID() string {
	return uuid.NewString()
}

// WithLogger stores log in ctx for FromContext.
func WithLogger(ctx context.Context, log zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, log)
}

// WithCorrelationID stores id in ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationIDFromContext returns the id stored in ctx, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

// Scoped returns base tagged with the correlation id carried by ctx, if any.
func Scoped(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	if id := CorrelationIDFromContext(ctx); id != "" {
		return base.With().Str(CorrelationField, id).Logger()
	}
	return base
}

// FromContext returns the logger stored by WithLogger, scoped to the
// context's correlation id. Without one it returns a disabled logger.
func FromContext(ctx context.Context) zerolog.Logger {
	base, ok := ctx.Value(loggerKey).(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return Scoped(ctx, base)
}
