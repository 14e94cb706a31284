package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config selects where records go and how they are encoded
type Config struct {
	Level  string // debug, info, warn, error; anything else is info
	Format string // json (default) or text
	// File receives the records; empty writes to stderr
	File string
	// AlsoStderr tees records to stderr when File is set
	AlsoStderr bool
}

// SetupLogger builds a logger from cfg. The closer releases the log file and
// must be called once logging is done.
func SetupLogger(cfg Config) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: true,
	}

	out, closer, err := openOutput(cfg.File, cfg.AlsoStderr)
	if err != nil {
		return nil, nil, err
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		handler = slog.NewJSONHandler(out, opts)
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		closer.Close()
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return slog.New(handler), closer, nil
}

func openOutput(path string, alsoStderr bool) (io.Writer, io.Closer, error) {
	if path == "" {
		return os.Stderr, nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	if alsoStderr {
		return io.MultiWriter(file, os.Stderr), file, nil
	}
	return file, file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ParseLevel accepts slog level names in any case, e.g. "debug" or "WARN"
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// WithComponent tags a logger with the component emitting the records
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// WithTelegramUser tags a logger with the Telegram user a request came from
func WithTelegramUser(logger *slog.Logger, telegramID int64) *slog.Logger {
	return logger.With("telegram_id", telegramID)
}

// WithSweep tags a logger with the sweep being run
func WithSweep(logger *slog.Logger, sweep string) *slog.Logger {
	return logger.With("sweep", sweep)
}

func WithDuration(logger *slog.Logger, duration time.Duration) *slog.Logger {
	return logger.With("duration_ms", duration.Milliseconds())
}
