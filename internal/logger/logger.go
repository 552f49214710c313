package logger

import (
	"io"
	"log/slog"
	"os"
)

// Logger is the minimal structured logging surface used across the
// indexing subsystem. Implementations must be safe for concurrent use.
type Logger interface {
	Info(msg string, keyvals ...interface{})

	Warn(msg string, keyvals ...interface{})

	Error(msg string, keyvals ...interface{})

	Debug(msg string, keyvals ...interface{})
}

// New returns a JSON logger writing to stderr. Stdout stays free for
// command output and the MCP protocol.
func New() Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// NewDebug is New with the debug level enabled.
func NewDebug() Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
