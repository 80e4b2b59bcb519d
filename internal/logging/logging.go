// Package logging provides leveled, structured logging for fxbridge.
//
// Messages use printf-style formatting. Fields attached with WithField or
// WithComponent are emitted as slog attributes on every line.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"strings"
	"sync"
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
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
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

// ParseLevel parses a string into a Level. Unknown strings map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format selects the slog handler.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config configures the logger.
type Config struct {
	// Level is the minimum log level to output.
	Level Level
	// Output is where logs are written. Defaults to os.Stderr.
	Output io.Writer
	// Format is "text" or "json". Defaults to text.
	Format Format
	// Prefix is attached as the "app" attribute.
	Prefix string
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
		Format: FormatText,
		Prefix: "fxbridge",
	}
}

// Logger is a leveled logger. Derived loggers share the level and handler
// of their parent.
type Logger struct {
	state  *loggerState
	fields map[string]any
}

type loggerState struct {
	mu       sync.Mutex
	level    *slog.LevelVar
	handler  slog.Handler
	disabled bool
}

// New creates a new logger with the given configuration.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	lv := new(slog.LevelVar)
	lv.Set(cfg.Level.slogLevel())
	opts := &slog.HandlerOptions{Level: lv}

	var h slog.Handler
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		h = slog.NewTextHandler(cfg.Output, opts)
	}
	if cfg.Prefix != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("app", cfg.Prefix)})
	}

	return &Logger{
		state:  &loggerState{level: lv, handler: h},
		fields: make(map[string]any),
	}
}

var nop = &Logger{state: &loggerState{disabled: true, level: new(slog.LevelVar)}}

// Nop returns a logger that discards all output.
func Nop() *Logger {
	return nop
}

// OrNop returns l, or the discarding logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return nop
	}
	return l
}

// WithField returns a new logger with the given field added.
func (l *Logger) WithField(key string, value any) *Logger {
	newFields := make(map[string]any, len(l.fields)+1)
	maps.Copy(newFields, l.fields)
	newFields[key] = value
	return &Logger{state: l.state, fields: newFields}
}

// WithFields returns a new logger with the given fields added.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	newFields := make(map[string]any, len(l.fields)+len(fields))
	maps.Copy(newFields, l.fields)
	maps.Copy(newFields, fields)
	return &Logger{state: l.state, fields: newFields}
}

// WithComponent returns a new logger with the component field set.
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithField("component", component)
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.state.level.Set(level.slogLevel())
}

// Disable disables all logging.
func (l *Logger) Disable() {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	l.state.disabled = true
}

// Enable enables logging.
func (l *Logger) Enable() {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	l.state.disabled = l.state.handler == nil
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...any) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...any) {
	l.log(LevelError, msg, args...)
}

func (l *Logger) log(level Level, msg string, args ...any) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	if l.state.disabled || l.state.handler == nil {
		return
	}
	ctx := context.Background()
	if !l.state.handler.Enabled(ctx, level.slogLevel()) {
		return
	}

	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	attrs := make([]any, 0, len(l.fields)*2)
	for k, v := range l.fields {
		attrs = append(attrs, k, v)
	}
	slog.New(l.state.handler).Log(ctx, level.slogLevel(), msg, attrs...)
}
