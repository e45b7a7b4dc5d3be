package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Options struct {
	Level  string
	Format string
	// Prefix is attached to every record as the "component" attribute.
	Prefix string
	// File, when set, receives a copy of every record in addition to stderr.
	File string
	// Output overrides stderr; used by tests.
	Output io.Writer
}

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type SlogLogger struct {
	logger *slog.Logger
	// file is the log file opened by NewLogger, if any.
	file io.Closer
}

func (l SlogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l SlogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l SlogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l SlogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// Enabled reports whether records at level would be emitted.
func (l SlogLogger) Enabled(level slog.Level) bool {
	return l.logger.Enabled(context.Background(), level)
}

// Close releases the log file. Loggers without one return nil.
func (l SlogLogger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Close releases whatever logger holds open, if it holds anything.
func Close(logger Logger) error {
	if c, ok := logger.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func NewLogger(opts Options) (Logger, error) {
	level := parseLevel(opts.Level)

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format != "" && format != "text" && format != "json" {
		return nil, errors.New("unsupported log format")
	}

	var out io.Writer = os.Stderr
	if opts.Output != nil {
		out = opts.Output
	}
	var file *os.File
	if strings.TrimSpace(opts.File) != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		out = io.MultiWriter(out, f)
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(WrapRedacting(handler))
	if prefix := strings.TrimSpace(opts.Prefix); prefix != "" {
		logger = logger.With("component", prefix)
	}
	result := SlogLogger{logger: logger}
	if file != nil {
		result.file = file
	}
	return result, nil
}

func parseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
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

// ValidLevel reports whether value names a supported level.
func ValidLevel(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "debug", "info", "warn", "warning", "error":
		return true
	default:
		return false
	}
}

type ctxKey struct{}

func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func FromContext(ctx context.Context) Logger {
	if ctx == nil {
		return defaultLogger()
	}
	if v := ctx.Value(ctxKey{}); v != nil {
		if logger, ok := v.(Logger); ok && logger != nil {
			return logger
		}
	}
	return defaultLogger()
}

func defaultLogger() Logger {
	return SlogLogger{logger: slog.New(WrapRedacting(slog.NewTextHandler(os.Stderr, nil)))}
}

// Discard returns a Logger that drops every record.
func Discard() Logger {
	return SlogLogger{logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}
