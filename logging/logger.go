// Package logging builds the structured loggers used across an analysis.
// Every component receives a *slog.Logger; the helpers here attach the
// run, pass and phase attributes so log lines of one run can be joined.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Log levels accepted by ParseLevel
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Output formats
const (
	FormatJSON = "json"
	FormatText = "text"
)

// ParseLevel converts a level name to a slog.Level, defaulting to INFO
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger writing to w in the given format
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, FormatText) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Open returns a logger writing to path, or to stderr when path is empty.
// The returned close function is never nil.
func Open(path, level, format string) (*slog.Logger, func() error, error) {
	if path == "" {
		return New(os.Stderr, level, format), func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return New(f, level, format), f.Close, nil
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WithRun tags every entry with a fresh run id and returns the id
func WithRun(l *slog.Logger) (*slog.Logger, string) {
	id := uuid.NewString()
	return l.With(slog.String("run_id", id)), id
}

// WithPass tags every entry with the adaptive pass number
func WithPass(l *slog.Logger, pass int) *slog.Logger {
	return l.With(slog.Int("pass", pass))
}

// WithPhase tags every entry with the controller phase
func WithPhase(l *slog.Logger, phase string) *slog.Logger {
	return l.With(slog.String("phase", phase))
}
