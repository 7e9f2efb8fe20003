package logging

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// Logger wraps slog.Logger with application-specific functionality
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// ParseLevel maps a LOG_LEVEL string onto a slog level. Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a new logger with the specified level
func New(level string) *Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return &Logger{Logger: slog.New(handler)}
}

// NewWithFile writes JSON to stdout and appends the same records to logFile.
// When the file cannot be opened the logger falls back to stdout only.
func NewWithFile(level, logFile string) *Logger {
	if logFile == "" {
		return New(level)
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := New(level)
		logger.Error("failed to open log file, using stdout only", "error", err, "file", logFile)
		return logger
	}
	logger := NewWithWriters(level, os.Stdout, file)
	logger.closer = file
	return logger
}

// NewWithWriters fans every record out to all writers as JSON.
func NewWithWriters(level string, writers ...io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	handlers := make([]slog.Handler, 0, len(writers))
	for _, w := range writers {
		handlers = append(handlers, slog.NewJSONHandler(w, opts))
	}
	return &Logger{Logger: slog.New(slogmulti.Fanout(handlers...))}
}

// With returns a logger carrying the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), closer: l.closer}
}

// Close releases the log file opened by NewWithFile, if any.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Default returns a logger with default settings
func Default() *Logger {
	return New("info")
}
