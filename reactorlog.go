package ioreactor

import (
	"os"
	"sync/atomic"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is a thin facade over a logiface logger, used throughout the
// reactor core and handle implementations for structured diagnostic output.
// The zero value, and any Logger returned by NewLogger with no writer
// configured, is disabled: building an entry is cheap and never allocates or
// writes.
type Logger struct {
	l *logiface.Logger[*stumpy.Event]
}

// LogOption configures a Logger constructed by NewLogger.
type LogOption func(*logLoggerConfig)

type logLoggerConfig struct {
	writer *os.File
	level  logiface.Level
}

// WithLogWriter directs log output to w. Without this option, NewLogger
// produces a disabled Logger.
func WithLogWriter(w *os.File) LogOption {
	return func(c *logLoggerConfig) { c.writer = w }
}

// WithLogLevel sets the minimum level logged. Defaults to LevelInformational.
func WithLogLevel(level logiface.Level) LogOption {
	return func(c *logLoggerConfig) { c.level = level }
}

// NewLogger constructs a Logger. With no options, the result is disabled.
func NewLogger(options ...LogOption) *Logger {
	c := logLoggerConfig{level: logiface.LevelInformational}
	for _, o := range options {
		o(&c)
	}
	if c.writer == nil {
		return &Logger{l: logiface.New[*stumpy.Event](logiface.WithLevel[*stumpy.Event](logiface.LevelDisabled))}
	}
	return &Logger{
		l: logiface.New[*stumpy.Event](
			stumpy.WithStumpy(stumpy.WithWriter(c.writer)),
			logiface.WithLevel[*stumpy.Event](c.level),
		),
	}
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(NewLogger())
}

// SetLogger installs the process-wide default logger used by reactors that
// don't override it via WithLogger.
func SetLogger(l *Logger) {
	if l == nil {
		l = NewLogger()
	}
	defaultLogger.Store(l)
}

// DefaultLogger returns the process-wide default logger.
func DefaultLogger() *Logger {
	return defaultLogger.Load()
}

// Trace starts a trace-level entry.
func (l *Logger) Trace() *LogEntry { return l.entry(logiface.LevelTrace) }

// Debug starts a debug-level entry.
func (l *Logger) Debug() *LogEntry { return l.entry(logiface.LevelDebug) }

// Info starts an informational-level entry.
func (l *Logger) Info() *LogEntry { return l.entry(logiface.LevelInformational) }

// Warning starts a warning-level entry.
func (l *Logger) Warning() *LogEntry { return l.entry(logiface.LevelWarning) }

// Err starts an error-level entry.
func (l *Logger) Err() *LogEntry { return l.entry(logiface.LevelError) }

func (l *Logger) entry(level logiface.Level) *LogEntry {
	if l == nil || l.l == nil {
		return nil
	}
	return &LogEntry{b: l.l.Build(level)}
}

// LogEntry is a fluent builder for a single log line. A nil *LogEntry (the
// disabled case) accepts every chained call as a no-op, so call sites never
// need to guard on whether logging is enabled.
type LogEntry struct {
	b *logiface.Builder[*stumpy.Event]
}

// Str attaches a string field.
func (e *LogEntry) Str(key, val string) *LogEntry {
	if e == nil || e.b == nil {
		return e
	}
	e.b.Str(key, val)
	return e
}

// Int attaches an integer field.
func (e *LogEntry) Int(key string, val int) *LogEntry {
	if e == nil || e.b == nil {
		return e
	}
	e.b.Int(key, val)
	return e
}

// Err attaches an error field.
func (e *LogEntry) Err(err error) *LogEntry {
	if e == nil || e.b == nil || err == nil {
		return e
	}
	e.b.Err(err)
	return e
}

// Msg finalizes and writes the entry.
func (e *LogEntry) Msg(msg string) {
	if e == nil || e.b == nil {
		return
	}
	e.b.Log(msg)
}

// Msgf finalizes and writes the entry with a formatted message.
func (e *LogEntry) Msgf(format string, args ...any) {
	if e == nil || e.b == nil {
		return
	}
	e.b.Logf(format, args...)
}
