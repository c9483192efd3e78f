// Package logger is the concrete logging.Logger implementation: an
// slog.Logger fronted by either a pterm-styled console handler or plain
// JSON, with an optional rotating file sink. Adapted from olla's
// internal/logger.New, trimmed of olla's theme package (this gateway has
// no terminal theming concept) while keeping the same handler-composition
// shape: console and file handlers run side by side via a tiny
// multi-handler rather than picking one.
package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lynn4am/transparent-gateway/internal/logging"
)

// Config controls where and how logs are emitted.
type Config struct {
	Level      string
	LogDir     string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	FileOutput bool
	PrettyLogs bool
}

const defaultLogFileName = "gateway.log"

// New builds the root slog-backed Logger and a cleanup func that flushes
// and closes any file sink. Callers should defer cleanup() once, at
// process shutdown.
func New(cfg Config) (logging.Logger, func(), error) {
	level := parseLevel(cfg.Level)

	var cleanupFuncs []func()
	var handlers []slog.Handler

	if cfg.PrettyLogs {
		handlers = append(handlers, consoleHandler(level))
	} else {
		handlers = append(handlers, jsonHandler(os.Stdout, level))
	}

	if cfg.FileOutput {
		fileHandler, cleanup, err := fileHandlerFor(cfg, level)
		if err != nil {
			return nil, nil, err
		}
		cleanupFuncs = append(cleanupFuncs, cleanup)
		handlers = append(handlers, fileHandler)
	}

	var h slog.Handler
	if len(handlers) == 1 {
		h = handlers[0]
	} else {
		h = &fanOutHandler{handlers: handlers}
	}

	cleanup := func() {
		for _, fn := range cleanupFuncs {
			fn()
		}
	}
	return &slogLogger{inner: slog.New(h)}, cleanup, nil
}

func consoleHandler(level slog.Level) slog.Handler {
	plogger := pterm.DefaultLogger.
		WithLevel(toPtermLevel(level)).
		WithWriter(os.Stdout).
		WithFormatter(pterm.LogFormatterColorful)
	return pterm.NewSlogHandler(plogger)
}

func jsonHandler(w *os.File, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: stripANSI,
	})
}

func fileHandlerFor(cfg Config, level slog.Level) (slog.Handler, func(), error) {
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, defaultLogFileName),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}
	handler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: stripANSI,
	})
	return handler, func() { _ = rotator.Close() }, nil
}

// stripANSI removes colour escape codes that can otherwise leak into a
// JSON-encoded file sink when a value was built from pterm-styled text.
func stripANSI(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		return a
	}
	s := a.Value.String()
	if !strings.ContainsRune(s, '\x1b') {
		return a
	}
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape && r == 'm':
			inEscape = false
		case !inEscape:
			b.WriteRune(r)
		}
	}
	return slog.Attr{Key: a.Key, Value: slog.StringValue(b.String())}
}

// fanOutHandler writes every record to all of its handlers, the way
// olla's simpleMultiHandler combines a console and a file sink without
// double-formatting a shared buffer.
type fanOutHandler struct {
	handlers []slog.Handler
}

func (h *fanOutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanOutHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (h *fanOutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		out[i] = handler.WithAttrs(attrs)
	}
	return &fanOutHandler{handlers: out}
}

func (h *fanOutHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		out[i] = handler.WithGroup(name)
	}
	return &fanOutHandler{handlers: out}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

func toPtermLevel(level slog.Level) pterm.LogLevel {
	switch level {
	case slog.LevelDebug:
		return pterm.LogLevelTrace
	case slog.LevelWarn:
		return pterm.LogLevelWarn
	case slog.LevelError:
		return pterm.LogLevelError
	default:
		return pterm.LogLevelInfo
	}
}

// slogLogger adapts *slog.Logger to logging.Logger.
type slogLogger struct {
	inner *slog.Logger
}

func (l *slogLogger) Debug(msg string, args ...any) { l.inner.Debug(msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.inner.Info(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.inner.Warn(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.inner.Error(msg, args...) }

func (l *slogLogger) With(args ...any) logging.Logger {
	return &slogLogger{inner: l.inner.With(args...)}
}
