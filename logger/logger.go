package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/pure-golang/mailbatch/logger/devslog"
	"github.com/pure-golang/mailbatch/logger/noop"
	"github.com/pure-golang/mailbatch/logger/stdjson"
	"github.com/pure-golang/mailbatch/logger/text"
)

type Level string
type Provider string
type contextKeyT string

var contextKey = contextKeyT("github.com/pure-golang/mailbatch/logger")

const (
	INFO  Level = "info"
	ERROR Level = "error"
	WARN  Level = "warn"
	DEBUG Level = "debug"

	ProviderText Provider = "text" // progress lines for terminals
	ProviderDev  Provider = "dev"  // colored, with source
	ProviderJSON Provider = "json" // for log collectors
	ProviderNoop Provider = "noop" // for unit tests
)

type Config struct {
	Provider Provider `envconfig:"LOG_PROVIDER" default:"text"`
	Level    Level    `envconfig:"LOG_LEVEL" default:"info"`
}

// New builds a logger writing to w.
func New(c Config, w io.Writer) *slog.Logger {
	level := convertLevel(c.Level)
	switch c.Provider {
	case ProviderDev:
		return devslog.New(w, level)
	case ProviderJSON:
		return stdjson.New(w, level)
	case ProviderNoop:
		return noop.NewNoop()
	case ProviderText:
		fallthrough
	default:
		return text.New(w, level)
	}
}

// NewDefault builds a logger writing to stderr, leaving stdout to the caller.
func NewDefault(c Config) *slog.Logger {
	return New(c, os.Stderr)
}

// InitDefault builds a logger, sets it as slog default and routes otel errors to it.
func InitDefault(c Config) *slog.Logger {
	l := NewDefault(c)
	slog.SetDefault(l)
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		slog.Default().Error(err.Error())
	}))
	return l
}

// FromContext extracts the logger from ctx, or returns slog default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey).(*slog.Logger); ok {
		return l
	}

	return slog.Default()
}

// NewContext packs l into ctx.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey, l)
}

// WithErr returns the default logger with the error attached.
func WithErr(err error) *slog.Logger {
	return appendErr(slog.Default(), err)
}

// FromContextWithErr extracts the logger from ctx and attaches err with its stack trace.
func FromContextWithErr(ctx context.Context, err error) *slog.Logger {
	return appendErr(FromContext(ctx), err)
}

func appendErr(l *slog.Logger, err error) *slog.Logger {
	var stackTracer interface {
		StackTrace() errors.StackTrace
	}

	if errors.As(err, &stackTracer) {
		l = l.With("stack", stackTracer.StackTrace())
	}

	return l.With("error", err.Error())
}

func convertLevel(level Level) slog.Level {
	switch level {
	case ERROR:
		return slog.LevelError
	case WARN:
		return slog.LevelWarn
	case DEBUG:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
