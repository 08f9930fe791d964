// Package text writes progress lines as logfmt without timestamps.
package text

import (
	"io"
	"log/slog"
	"os"
)

func NewDefault(level slog.Level) *slog.Logger {
	return New(os.Stderr, level)
}

func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: dropTime,
	}))
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}
