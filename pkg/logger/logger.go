// Package logger provides the process-wide component logger.
//
// The host owns stdout for protocol traffic, so log output goes to stderr
// and, optionally, a log file. Every entry carries a component tag.
package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Log levels accepted by SetLevel.
const (
	DEBUG = zerolog.DebugLevel
	INFO  = zerolog.InfoLevel
	WARN  = zerolog.WarnLevel
	ERROR = zerolog.ErrorLevel
)

var (
	mu   sync.Mutex
	file *os.File
	root = newRoot(os.Stderr, nil)
)

func newRoot(console io.Writer, extra io.Writer) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
	var w io.Writer = cw
	if extra != nil {
		w = zerolog.MultiLevelWriter(cw, extra)
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// SetLevel sets the minimum level for all log output.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// ParseLevel converts a config string ("debug", "info", ...) to a level.
func ParseLevel(s string) (zerolog.Level, error) {
	return zerolog.ParseLevel(s)
}

// Quiet disables all log output.
func Quiet() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// SetLogFile mirrors log output to the given file in addition to stderr.
func SetLogFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
	}
	file = f
	root = newRoot(os.Stderr, f)
	return nil
}

// Close releases the log file, if one was opened.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
		root = newRoot(os.Stderr, nil)
	}
}

func emit(level zerolog.Level, component, msg string, fields map[string]any) {
	mu.Lock()
	l := root
	mu.Unlock()

	ev := l.WithLevel(level).Str("component", component)
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msg(msg)
}

func DebugC(component, msg string) { emit(zerolog.DebugLevel, component, msg, nil) }
func InfoC(component, msg string)  { emit(zerolog.InfoLevel, component, msg, nil) }
func WarnC(component, msg string)  { emit(zerolog.WarnLevel, component, msg, nil) }
func ErrorC(component, msg string) { emit(zerolog.ErrorLevel, component, msg, nil) }

func DebugCF(component, msg string, fields map[string]any) {
	emit(zerolog.DebugLevel, component, msg, fields)
}

func InfoCF(component, msg string, fields map[string]any) {
	emit(zerolog.InfoLevel, component, msg, fields)
}

func WarnCF(component, msg string, fields map[string]any) {
	emit(zerolog.WarnLevel, component, msg, fields)
}

func ErrorCF(component, msg string, fields map[string]any) {
	emit(zerolog.ErrorLevel, component, msg, fields)
}
