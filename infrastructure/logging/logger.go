// Package logging provides structured logging using bolt.
//
// A Logger is created once at startup, handed to every component that logs,
// and closed at shutdown. There is no package-level logger.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/felixgeelhaar/bolt/v3"
)

// Config configures the logger.
type Config struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string

	// Format is the output format (json or console).
	Format string

	// Output is the output destination. Ignored when Path is set.
	Output io.Writer

	// Path is a file to append logs to. The logger owns and closes it.
	Path string
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: os.Stderr,
	}
}

// ProductionConfig returns a production-ready configuration.
func ProductionConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: os.Stderr,
	}
}

// parseLevel converts a string level to bolt.Level.
func parseLevel(s string) bolt.Level {
	switch s {
	case "trace":
		return bolt.TRACE
	case "debug":
		return bolt.DEBUG
	case "info":
		return bolt.INFO
	case "warn":
		return bolt.WARN
	case "error":
		return bolt.ERROR
	default:
		return bolt.INFO
	}
}

// Logger is an injectable structured logger.
type Logger struct {
	bolt   *bolt.Logger
	base   []Field
	closer io.Closer
}

// New creates a logger from the configuration.
func New(config Config) (*Logger, error) {
	output := config.Output
	var closer io.Closer
	if config.Path != "" {
		f, err := os.OpenFile(config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		output, closer = f, f
	}
	if output == nil {
		output = os.Stderr
	}

	var handler bolt.Handler
	if config.Format == "json" {
		handler = bolt.NewJSONHandler(output)
	} else {
		handler = bolt.NewConsoleHandler(output)
	}

	return &Logger{
		bolt:   bolt.New(handler).SetLevel(parseLevel(config.Level)),
		closer: closer,
	}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{bolt: bolt.New(bolt.NewJSONHandler(io.Discard)).SetLevel(bolt.ERROR)}
}

// With returns a logger that adds the fields to every event.
func (l *Logger) With(fields ...Field) *Logger {
	base := make([]Field, 0, len(l.base)+len(fields))
	base = append(base, l.base...)
	base = append(base, fields...)
	return &Logger{bolt: l.bolt, base: base}
}

// SetLevel changes the minimum level.
func (l *Logger) SetLevel(level string) {
	l.bolt.SetLevel(parseLevel(level))
}

// Close releases the log file if the logger opened one. Children created
// with With share the parent's output and must not be closed.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

func (l *Logger) event(e *bolt.Event) *LogEvent {
	ev := &LogEvent{event: e}
	for _, f := range l.base {
		ev.Add(f)
	}
	return ev
}

// Trace returns a LogEvent wrapper for trace level logging.
func (l *Logger) Trace() *LogEvent { return l.event(l.bolt.Trace()) }

// Debug returns a LogEvent wrapper for debug level logging.
func (l *Logger) Debug() *LogEvent { return l.event(l.bolt.Debug()) }

// Info returns a LogEvent wrapper for info level logging.
func (l *Logger) Info() *LogEvent { return l.event(l.bolt.Info()) }

// Warn returns a LogEvent wrapper for warn level logging.
func (l *Logger) Warn() *LogEvent { return l.event(l.bolt.Warn()) }

// Error returns a LogEvent wrapper for error level logging.
func (l *Logger) Error() *LogEvent { return l.event(l.bolt.Error()) }

// LogEvent is a wrapper that allows adding Fields to a bolt.Event.
type LogEvent struct {
	event *bolt.Event
}

// Add applies a field to the event and returns the wrapper for chaining.
func (l *LogEvent) Add(f Field) *LogEvent {
	l.event = f(l.event)
	return l
}

// Msg sends the log event with a message.
func (l *LogEvent) Msg(msg string) {
	l.event.Msg(msg)
}

// Send sends the log event without a message.
func (l *LogEvent) Send() {
	l.event.Send()
}
