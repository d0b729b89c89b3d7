// Package logger provides structured logging for the audit pipeline.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level represents log levels.
type Level = zerolog.Level

// Log levels.
const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	zl zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level      Level
	Pretty     bool // console writer with colors
	Output     io.Writer
	TimeFormat string
	Component  string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:      InfoLevel,
		Pretty:     true,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// New creates a new logger with the given configuration.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}

	zerolog.TimeFieldFormat = cfg.TimeFormat

	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: "15:04:05",
		}
	}

	zl := zerolog.New(output).With().Timestamp().Logger().Level(cfg.Level)
	if cfg.Component != "" {
		zl = zl.With().Str("component", cfg.Component).Logger()
	}

	return &Logger{zl: zl}
}

// NewDefault creates a logger with default configuration.
func NewDefault() *Logger {
	return New(DefaultConfig())
}

// NewJSON creates a JSON-only logger suitable for scheduled invocations.
func NewJSON(level Level) *Logger {
	return New(Config{Level: level, Pretty: false, Output: os.Stderr})
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// WithComponent returns a child logger with the component field set.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", component).Logger()}
}

// WithAudit returns a child logger scoped to one audit.
func (l *Logger) WithAudit(auditID string) *Logger {
	return &Logger{zl: l.zl.With().Str("audit_id", auditID).Logger()}
}

// WithPhase returns a child logger scoped to one phase.
func (l *Logger) WithPhase(phase string) *Logger {
	return &Logger{zl: l.zl.With().Str("phase", phase).Logger()}
}

// WithURL returns a child logger with the url field set.
func (l *Logger) WithURL(url string) *Logger {
	return &Logger{zl: l.zl.With().Str("url", url).Logger()}
}

// WithError returns a child logger with the error field set.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().Err(err).Logger()}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }

// Debugf logs a formatted debug message.
func (l *Logger) Debugf(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }

// Info logs an info message.
func (l *Logger) Info(msg string) { l.zl.Info().Msg(msg) }

// Infof logs a formatted info message.
func (l *Logger) Infof(format string, args ...interface{}) { l.zl.Info().Msgf(format, args...) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string) { l.zl.Warn().Msg(msg) }

// Warnf logs a formatted warning message.
func (l *Logger) Warnf(format string, args ...interface{}) { l.zl.Warn().Msgf(format, args...) }

// Error logs an error message.
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

// Errorf logs a formatted error message.
func (l *Logger) Errorf(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(msg string) { l.zl.Fatal().Msg(msg) }

// Event returns a zerolog Event for structured field logging.
func (l *Logger) Event(level Level) *zerolog.Event {
	switch level {
	case DebugLevel:
		return l.zl.Debug()
	case WarnLevel:
		return l.zl.Warn()
	case ErrorLevel:
		return l.zl.Error()
	default:
		return l.zl.Info()
	}
}

// PhaseEvent logs a phase transition with standard fields.
func (l *Logger) PhaseEvent(auditID, phase string, attempt int, duration time.Duration, msg string) {
	l.zl.Info().
		Str("audit_id", auditID).
		Str("phase", phase).
		Int("attempt", attempt).
		Dur("duration", duration).
		Msg(msg)
}

// FetchEvent logs an outbound request.
func (l *Logger) FetchEvent(url string, statusCode int, duration time.Duration) {
	l.zl.Debug().
		Str("url", url).
		Int("status_code", statusCode).
		Dur("duration", duration).
		Msg("fetch")
}

// ParseLevel parses a level string.
func ParseLevel(levelStr string) (Level, error) {
	return zerolog.ParseLevel(levelStr)
}
