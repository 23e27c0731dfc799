package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/CodeNoob53/funding-calculator-server/internal/platform/correlation"
)

// Logger is the application-wide structured logger instance.
var Logger *slog.Logger

// FileOptions enables the rotating JSON file sink when Path is non-empty.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

// DefaultFileOptions rotates at 5 MB and keeps 5 old files.
func DefaultFileOptions(path string) FileOptions {
	return FileOptions{Path: path, MaxSizeMB: 5, MaxBackups: 5}
}

// InitLogger initializes the global logger with the specified level and format.
// level: "debug", "info", "warn", "error" (defaults to "info")
// format: "json" or "text" (defaults to "text")
// The returned closer flushes the file sink; it is a no-op without one.
func InitLogger(level, format string, file FileOptions) io.Closer {
	return initLogger(os.Stdout, level, format, file)
}

func initLogger(stdout io.Writer, level, format string, file FileOptions) io.Closer {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(stdout, opts)
	} else {
		handler = slog.NewTextHandler(stdout, opts)
	}

	var closer io.Closer = nopCloser{}
	if file.Path != "" {
		sink := &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
		}
		handler = fanout{handler, slog.NewJSONHandler(sink, opts)}
		closer = sink
	}

	handler = correlation.NewHandler(handler)

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
	return closer
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fanout writes each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
