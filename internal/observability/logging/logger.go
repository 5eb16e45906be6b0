package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

func NewJSONLogger(service, level string) *slog.Logger {
	return newJSONLogger(os.Stdout, service, level)
}

// NewLogger picks the handler by format: "pretty" for terminals, JSON otherwise.
func NewLogger(service, level, format string) *slog.Logger {
	return New(os.Stderr, service, level, format)
}

func New(w io.Writer, service, level, format string) *slog.Logger {
	if strings.EqualFold(strings.TrimSpace(format), "pretty") {
		handler := NewPrettyHandler(w, PrettyHandlerOptions{
			SlogOpts: slog.HandlerOptions{Level: parseLevel(level)},
		})
		return slog.New(handler).With("service", service)
	}
	return newJSONLogger(w, service, level)
}

func newJSONLogger(w io.Writer, service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler).With("service", service)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
