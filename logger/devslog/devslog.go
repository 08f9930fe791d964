package devslog

import (
	"io"
	"log/slog"
	"os"

	"github.com/golang-cz/devslog"
)

// NewDefault returns a colored logger on stderr.
func NewDefault(level slog.Level) *slog.Logger {
	return New(os.Stderr, level)
}

func New(w io.Writer, level slog.Level) *slog.Logger {
	opts := &devslog.Options{
		HandlerOptions: &slog.HandlerOptions{
			AddSource: true,
			Level:     level,
		},
		NewLineAfterLog:    true,
		MaxErrorStackTrace: 40,
		MaxSlicePrintSize:  40,
		SortKeys:           true,
		TimeFormat:         "[15:04:05]",
		DebugColor:         devslog.Magenta,
		StringerFormatter:  true,
	}

	return slog.New(devslog.NewHandler(w, opts))
}
