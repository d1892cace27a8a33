// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// sink is the output state shared by a logger and every child derived
// from it with With.
type sink struct {
	mu         sync.Mutex
	output     io.Writer
	timestamps bool
}

// Field is one key=value pair attached to every line a Logger writes.
type Field struct {
	Key   string
	Value interface{}
}

// Logger writes levelled messages to stderr with optional timestamps,
// level prefixes and structured fields.
type Logger struct {
	level  LogLevel
	out    *sink
	fields []Field
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	return &Logger{
		level: LogLevel(verbosity),
		out: &sink{
			output:     os.Stderr,
			timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
		},
	}
}

// Discard returns a quiet Logger that writes nowhere.
func Discard() *Logger {
	l := NewLogger(0)
	l.SetOutput(io.Discard)
	return l
}

// With returns a child logger that renders key=value after the level
// tag.  The child shares its parent's output and lock.
func (l *Logger) With(key string, value interface{}) *Logger {
	fields := make([]Field, 0, len(l.fields)+1)
	fields = append(fields, l.fields...)
	fields = append(fields, Field{Key: key, Value: value})
	return &Logger{level: l.level, out: l.out, fields: fields}
}

// Fields returns a copy of the structured fields attached to l.
func (l *Logger) Fields() []Field {
	return append([]Field(nil), l.fields...)
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.out.mu.Lock()
	l.out.timestamps = on
	l.out.mu.Unlock()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.out.mu.Lock()
	l.out.output = w
	l.out.mu.Unlock()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write("INF", format, args...)
	}
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write("WRN", format, args...)
	}
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.level >= LogVerbose {
		l.write("VRB", format, args...)
	}
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LogDebug {
		l.write("DBG", format, args...)
	}
}

// Error always prints regardless of verbosity.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.write("ERR", format, args...)
}

// Critical always prints.  Prefixed with [CRT].
func (l *Logger) Critical(format string, args ...interface{}) {
	l.write("CRT", format, args...)
}

func (l *Logger) write(level, format string, args ...interface{}) {
	var b strings.Builder
	for _, f := range l.fields {
		fmt.Fprintf(&b, "%s=%v ", f.Key, f.Value)
	}
	b.WriteString(fmt.Sprintf(format, args...))

	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if l.out.timestamps {
		ts := time.Now().Format("15:04:05.000")
		fmt.Fprintf(l.out.output, "%s [%s] %s\n", ts, level, b.String())
	} else {
		fmt.Fprintf(l.out.output, "[%s] %s\n", level, b.String())
	}
}
