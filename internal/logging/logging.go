// Package logging provides structured logging for the server, client and
// command-line tools.
//
// Logger wraps a charmbracelet/log logger and keeps the field-oriented API
// used across the code base: derive a child logger with WithComponent or
// WithField, then log a message with alternating key/value pairs.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	clog "github.com/charmbracelet/log"
)

// Level represents the severity level of a log message.
type Level int

const (
	// LevelDebug is for detailed debugging information.
	LevelDebug Level = iota
	// LevelInfo is for general informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel parses a string into a Level. Unknown values map to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) clog() clog.Level {
	switch l {
	case LevelDebug:
		return clog.DebugLevel
	case LevelWarn:
		return clog.WarnLevel
	case LevelError:
		return clog.ErrorLevel
	default:
		return clog.InfoLevel
	}
}

// Config configures the logger.
type Config struct {
	// Level is the minimum log level to output.
	Level Level
	// Format is one of "text", "json" or "logfmt". Defaults to text.
	Format string
	// Output is where logs are written. Defaults to os.Stderr.
	Output io.Writer
	// Prefix is prepended to all log messages.
	Prefix string
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: "text",
		Output: os.Stderr,
		Prefix: "muxstorm",
	}
}

// Logger provides structured logging.
type Logger struct {
	l *clog.Logger
}

// New creates a new logger with the given configuration.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	l := clog.NewWithOptions(cfg.Output, clog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           cfg.Level.clog(),
		Prefix:          cfg.Prefix,
		Formatter:       formatter(cfg.Format),
	})
	return &Logger{l: l}
}

func formatter(name string) clog.Formatter {
	switch strings.ToLower(name) {
	case "json":
		return clog.JSONFormatter
	case "logfmt":
		return clog.LogfmtFormatter
	default:
		return clog.TextFormatter
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New(Config{Level: LevelError, Output: io.Discard})
}

// WithField returns a new logger with the given field added.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{l: l.l.With(key, value)}
}

// WithFields returns a new logger with the given fields added.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	kv := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return &Logger{l: l.l.With(kv...)}
}

// WithComponent returns a new logger with the component field set.
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithField("component", component)
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.l.SetLevel(level.clog())
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return l.l.GetLevel() <= level.clog()
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, keyvals ...any) {
	l.l.Debug(msg, keyvals...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, keyvals ...any) {
	l.l.Info(msg, keyvals...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, keyvals ...any) {
	l.l.Warn(msg, keyvals...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, keyvals ...any) {
	l.l.Error(msg, keyvals...)
}

// OpenFile opens path for appending log output, creating parent
// directories as needed.
func OpenFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}
