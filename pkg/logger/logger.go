package logger

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the logging interface used by the library.
type Logger interface {
	Info(msg string, obj any)
	Warn(msg string, obj any)
	Debug(msg string, obj any)
	Error(msg string, obj any)
}

// NopLogger discards all log messages.
type NopLogger struct{}

func (NopLogger) Info(string, any)  {}
func (NopLogger) Warn(string, any)  {}
func (NopLogger) Debug(string, any) {}
func (NopLogger) Error(string, any) {}

type zerologLogger struct {
	zl zerolog.Logger
}

func (l zerologLogger) write(event *zerolog.Event, msg string, obj any) {
	if obj != nil {
		event = event.Interface("obj", obj)
	}
	event.Msg(msg)
}

// NewWriterLogger builds a human-readable logger that writes to an io.Writer.
func NewWriterLogger(w io.Writer) Logger {
	if w == nil {
		return NopLogger{}
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	return zerologLogger{zl: zerolog.New(out).With().Timestamp().Logger()}
}

// With returns a child logger carrying an extra string field. Loggers that
// are not zerolog-backed are returned unchanged.
func With(l Logger, key, value string) Logger {
	zl, ok := l.(zerologLogger)
	if !ok {
		return l
	}
	return zerologLogger{zl: zl.zl.With().Str(key, value).Logger()}
}

func (l zerologLogger) Info(msg string, obj any)  { l.write(l.zl.Info(), msg, obj) }
func (l zerologLogger) Warn(msg string, obj any)  { l.write(l.zl.Warn(), msg, obj) }
func (l zerologLogger) Debug(msg string, obj any) { l.write(l.zl.Debug(), msg, obj) }
func (l zerologLogger) Error(msg string, obj any) { l.write(l.zl.Error(), msg, obj) }

// Debug writes a debug log when enabled and logger is non-nil.
func Debug(enabled bool, logger Logger, msg string, obj any) {
	if !enabled || logger == nil {
		return
	}
	logger.Debug(msg, obj)
}

// Debugf is a compatibility helper for format-style debug logging.
func Debugf(enabled bool, logger Logger, format string, args ...any) {
	Debug(enabled, logger, fmt.Sprintf(format, args...), nil)
}

// Warn writes a warning log when logger is non-nil.
func Warn(logger Logger, msg string, obj any) {
	if logger == nil {
		return
	}
	logger.Warn(msg, obj)
}

// Error writes an error log when logger is non-nil.
func Error(logger Logger, msg string, obj any) {
	if logger == nil {
		return
	}
	logger.Error(msg, obj)
}
