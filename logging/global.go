package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls where and how much the global logger writes.
type Options struct {
	Dir            string // empty means console only
	Level          string
	Env            string
	RetentionWeeks int
	MaxFileSize    int64
}

type LoggingService struct {
	Logger *slog.Logger
	file   *RotatingLogger
}

var DefaultLoggingService *LoggingService

// InitLogger initializes the global logger with default options. An empty
// logDir logs to the console only.
func InitLogger(logDir string) {
	Init(Options{Dir: logDir, Level: "info", RetentionWeeks: 4, MaxFileSize: defaultMaxFileSize})
}

// Init replaces the global logger. The returned closer releases the log file
// and must be called on shutdown.
func Init(opts Options) io.Closer {
	if DefaultLoggingService != nil {
		_ = DefaultLoggingService.Close()
	}

	service := &LoggingService{}
	consoleHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: ConsoleLevel(opts.Env, opts.Level),
	})

	handlers := []slog.Handler{consoleHandler}
	if opts.Dir != "" {
		rl := NewRotatingLogger(opts.Dir, opts.RetentionWeeks, opts.MaxFileSize)
		if err := rl.open(); err != nil {
			slog.New(consoleHandler).Error("Failed to initialize log file, logging to console only", "error", err)
		} else {
			service.file = rl
			// Files keep debug output regardless of console verbosity
			handlers = append(handlers, slog.NewJSONHandler(rl, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
	}

	if len(handlers) == 1 {
		service.Logger = slog.New(consoleHandler)
	} else {
		service.Logger = slog.New(&multiHandler{handlers: handlers})
	}

	DefaultLoggingService = service
	slog.SetDefault(service.Logger)
	return service
}

// Close releases the rotating file, if any.
func (s *LoggingService) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	return s.file.Close()
}

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
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

// ConsoleLevel is the console threshold: an explicit level wins, except in
// the test environment which stays quiet.
func ConsoleLevel(env, level string) slog.Level {
	switch {
	case env == "test":
		return slog.LevelError
	case level != "":
		return ParseLevel(level)
	case env == "prod" || env == "staging":
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func fallback(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func logger() *slog.Logger {
	if DefaultLoggingService == nil || DefaultLoggingService.Logger == nil {
		return nil
	}
	return DefaultLoggingService.Logger
}

// Package-level functions for direct access

func Info(msg string, args ...any) {
	if l := logger(); l != nil {
		l.Info(msg, args...)
		return
	}
	fallback(slog.LevelInfo).Info(msg, args...)
}

func Error(msg string, args ...any) {
	if l := logger(); l != nil {
		l.Error(msg, args...)
		return
	}
	fallback(slog.LevelError).Error(msg, args...)
}

func Warn(msg string, args ...any) {
	if l := logger(); l != nil {
		l.Warn(msg, args...)
		return
	}
	fallback(slog.LevelWarn).Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	if l := logger(); l != nil {
		l.Debug(msg, args...)
		return
	}
	fallback(slog.LevelDebug).Debug(msg, args...)
}

// multiHandler fans a record out to every handler that accepts its level.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
