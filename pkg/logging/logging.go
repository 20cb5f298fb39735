// Package logging provides the structured logger every driver component
// writes through. The API surface — a Logger with Debug/Info/Warn/Error/
// Fatal plus a package-level default logger — mirrors the teacher's own
// logging package; the implementation underneath is zerolog rather than a
// hand-rolled wrapper over the standard library's log.Logger.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Level is the severity of a log line. It maps directly onto zerolog's own
// level type so SetLevel is a cheap re-export rather than a translation
// layer.
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

// Logger wraps a zerolog.Logger, adding the component field every call site
// in this codebase tags its lines with (driver, server, queue, indexworker,
// ...).
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger that writes component-tagged JSON lines to out at the
// given minimum level.
func New(out io.Writer, component string, level Level) *Logger {
	zl := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
	return &Logger{zl: zl}
}

// NewConsole builds a Logger that writes human-readable (not JSON) lines to
// stderr, for interactive use and local debugging.
func NewConsole(component string, level Level) *Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	zl := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
	return &Logger{zl: zl}
}

// With returns a child Logger with an additional string field attached to
// every subsequent line — used to tag a logger with a request id,
// transaction id, or project id for the lifetime of one operation.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger()}
}

func (l *Logger) SetLevel(level Level) { l.zl = l.zl.Level(level) }
func (l *Logger) GetLevel() Level      { return l.zl.GetLevel() }

func (l *Logger) Debug(msg string, kv ...any) { l.event(l.zl.Debug(), msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.event(l.zl.Info(), msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.event(l.zl.Warn(), msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.event(l.zl.Error(), msg, kv...) }

// Fatal logs at error level and exits the process with status 1,
// matching the teacher's Fatal semantics.
func (l *Logger) Fatal(msg string, kv ...any) {
	l.event(l.zl.Error(), msg, kv...)
	os.Exit(1)
}

// event appends an even-length key/value tail as fields (string keys, values
// of any type) before firing the log line. Odd tails drop the trailing
// unpaired key; pairs whose key is not a string are skipped.
func (l *Logger) event(e *zerolog.Event, msg string, kv ...any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}

var defaultLogger = New(os.Stderr, "driver", InfoLevel)

// SetDefault replaces the package-level default logger.
func SetDefault(l *Logger) { defaultLogger = l }

func Default() *Logger { return defaultLogger }

func Debug(msg string, kv ...any) { defaultLogger.Debug(msg, kv...) }
func Info(msg string, kv ...any)  { defaultLogger.Info(msg, kv...) }
func Warn(msg string, kv ...any)  { defaultLogger.Warn(msg, kv...) }
func Error(msg string, kv ...any) { defaultLogger.Error(msg, kv...) }
func Fatal(msg string, kv ...any) { defaultLogger.Fatal(msg, kv...) }
