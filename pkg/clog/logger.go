package clog

import (
	"io"
	"log/slog"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// New builds the process logger. Context attributes are merged into every record.
func New(w io.Writer, format string, level slog.Level, colored bool) *slog.Logger {
	var h slog.Handler
	switch format {
	case FormatJSON:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		h = NewTextHandler(w, WithColor(colored), WithLevel(level))
	}
	return slog.New(NewAttributesHandler(h))
}
