// Package logger provides a simple, clean logging interface.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Constants for logging operations.
const (
	callerSkipFrames = 3 // getCaller -> log -> logging method -> actual caller
)

// Logger defines the logging interface.
type Logger interface {
	// Context-aware variants
	Info(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Fatal(ctx context.Context, msg string, fields ...Field)

	Named(name string) Logger
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// Field constructors.
func String(key, val string) Field                 { return Field{Key: key, Value: val} }
func Int(key string, val int) Field                { return Field{Key: key, Value: val} }
func Bool(key string, val bool) Field              { return Field{Key: key, Value: val} }
func Duration(key string, val time.Duration) Field { return Field{Key: key, Value: val} }
func Any(key string, val interface{}) Field        { return Field{Key: key, Value: val} }
func Error(err error) Field                        { return Field{Key: "error", Value: err} }

// zeroLogger implements Logger using zerolog.
type zeroLogger struct {
	zl zerolog.Logger
}

// New builds a Logger writing JSON lines to w. Tests use it to capture output.
func New(w io.Writer) Logger {
	return &zeroLogger{zl: zerolog.New(w).With().Timestamp().Logger()}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &zeroLogger{zl: zerolog.Nop()}
}

func (l *zeroLogger) Named(name string) Logger {
	return &zeroLogger{zl: l.zl.With().Str("component", name).Logger()}
}

func (l *zeroLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, l.zl.Info(), msg, fields)
}

func (l *zeroLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, l.zl.Error(), msg, fields)
}

func (l *zeroLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, l.zl.Debug(), msg, fields)
}

func (l *zeroLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, l.zl.Warn(), msg, fields)
}

func (l *zeroLogger) Fatal(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, l.zl.Error(), msg, fields)
	os.Exit(1)
}

func (l *zeroLogger) log(ctx context.Context, ev *zerolog.Event, msg string, fields []Field) {
	if ev == nil {
		return
	}
	ev = ev.Ctx(ctx).Str("source", getCaller())
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			ev = ev.AnErr(f.Key, v)
		case string:
			ev = ev.Str(f.Key, v)
		case int:
			ev = ev.Int(f.Key, v)
		case bool:
			ev = ev.Bool(f.Key, v)
		case time.Duration:
			ev = ev.Dur(f.Key, v)
		default:
			ev = ev.Interface(f.Key, v)
		}
	}
	ev.Msg(msg)
}

var (
	mu     sync.RWMutex
	global Logger
)

// Init initializes the global logger at info level.
func Init() error {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	mu.Lock()
	global = New(os.Stdout)
	mu.Unlock()
	return nil
}

// SetLevelString changes the global level; accepts debug, info, warn, error.
func SetLevelString(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// Sync is a no-op for zerolog, which writes synchronously. Kept so callers can defer it.
func Sync() error { return nil }

// Named returns a component logger derived from the global one.
func Named(name string) Logger {
	return Get().Named(name)
}

// getCaller returns the caller location in format relative/path/file.go:line (IDE-friendly).
func getCaller() string {
	_, file, line, ok := runtime.Caller(callerSkipFrames)
	if !ok {
		return "unknown:0"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	relPath, err := filepath.Rel(cwd, file)
	if err != nil {
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	return fmt.Sprintf("%s:%d", relPath, line)
}

// Get returns the global logger.
func Get() Logger {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		// The logger should be explicitly initialized by the application
		panic("logger not initialized. Call logger.Init() first")
	}
	return global
}
