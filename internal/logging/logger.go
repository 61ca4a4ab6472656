// Package logging provides leveled logging for nucore, in the teacher's
// own Logger/Config/Default() shape but backed by zerolog rather than
// stdlib log.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with the teacher's level-gated API.
type Logger struct {
	zl    zerolog.Logger
	level LogLevel
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// LogLevel represents the available log levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) zerologLevel() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Config holds logging configuration.
type Config struct {
	Level  LogLevel
	Output io.Writer
}

// DefaultConfig returns a sensible default configuration: Info level,
// a zerolog.ConsoleWriter over stderr, matching gosuda-portal's
// cmd/*/main.go startup idiom.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Output: zerolog.ConsoleWriter{Out: os.Stderr},
	}
}

// NewLogger creates a new logger.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	zl := zerolog.New(output).With().Timestamp().Logger().Level(config.Level.zerologLevel())
	return &Logger{zl: zl, level: config.Level}
}

// Default returns the default logger, creating it if necessary.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// applyFields adds alternating key/value pairs to a zerolog.Event,
// mirroring the teacher's printf-free key=value logging surface.
func applyFields(e *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, args[i+1])
	}
	return e
}

func (l *Logger) Debug(msg string, args ...any) { applyFields(l.zl.Debug(), args).Msg(msg) }
func (l *Logger) Info(msg string, args ...any)  { applyFields(l.zl.Info(), args).Msg(msg) }
func (l *Logger) Warn(msg string, args ...any)  { applyFields(l.zl.Warn(), args).Msg(msg) }
func (l *Logger) Error(msg string, args ...any) { applyFields(l.zl.Error(), args).Msg(msg) }

// Printf-style logging, kept for call sites migrated verbatim from the
// teacher's log.Printf-shaped helpers.
func (l *Logger) Debugf(format string, args ...any) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.zl.Error().Msgf(format, args...) }

// Printf is kept for compatibility with call sites that log at Info
// level by default.
func (l *Logger) Printf(format string, args ...any) { l.Infof(format, args...) }

// Global convenience functions.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
