package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Logger is the logging interface used by the estimator and its tools.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	// Enabled reports whether records at level are emitted, so callers can
	// skip building expensive attributes.
	Enabled(level slog.Level) bool
}

// logger wraps slog.Logger
type logger struct {
	slog *slog.Logger
}

var defaultLogger atomic.Value

func init() {
	defaultLogger.Store(holder{NewWithWriter(os.Stderr, "json", slog.LevelInfo)})
}

// holder keeps atomic.Value stores of one concrete type.
type holder struct{ Logger }

// SetDefault sets the default logger
func SetDefault(l Logger) {
	defaultLogger.Store(holder{l})
}

// Default returns the default logger
func Default() Logger {
	return defaultLogger.Load().(holder).Logger
}

// New creates a new logger with the given handler
func New(handler slog.Handler) Logger {
	return &logger{slog: slog.New(handler)}
}

// NewWithWriter creates a logger writing records of at least level to w.
// Format is "text" or "json".
func NewWithWriter(w io.Writer, format string, level slog.Level) Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return New(slog.NewTextHandler(w, opts))
	}
	return New(slog.NewJSONHandler(w, opts))
}

// Discard returns a logger that drops every record.
func Discard() Logger {
	return NewWithWriter(io.Discard, "text", slog.LevelError+1)
}

func (l *logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

func (l *logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

func (l *logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

func (l *logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

func (l *logger) With(args ...any) Logger {
	return &logger{slog: l.slog.With(args...)}
}

func (l *logger) Enabled(level slog.Level) bool {
	return l.slog.Enabled(context.Background(), level)
}

// Helper functions for structured logging

// String returns a string attribute
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Int returns an int attribute
func Int(key string, value int) slog.Attr {
	return slog.Int(key, value)
}

// Float64 returns a float64 attribute
func Float64(key string, value float64) slog.Attr {
	return slog.Float64(key, value)
}

// Bool returns a bool attribute
func Bool(key string, value bool) slog.Attr {
	return slog.Bool(key, value)
}

// Duration returns a duration attribute
func Duration(key string, value time.Duration) slog.Attr {
	return slog.Duration(key, value)
}

// Any returns an any attribute
func Any(key string, value any) slog.Attr {
	return slog.Any(key, value)
}

// Err returns the attribute used for errors.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Package-level convenience functions

func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}
