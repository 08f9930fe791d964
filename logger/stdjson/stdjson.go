package stdjson

import (
	"io"
	"log/slog"
	"os"
)

func NewDefault(level slog.Level) *slog.Logger {
	return New(os.Stderr, level)
}

func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
