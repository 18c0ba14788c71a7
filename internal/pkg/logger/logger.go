// Package logger writes one JSON object per line with alternating key/value
// fields.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

func (l Level) String() string { return levelNames[l] }

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "", "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

// Logger emits structured entries at or above its level.
type Logger struct {
	mu     sync.Mutex
	level  Level
	out    io.Writer
	fields []interface{}
}

// New creates a logger writing to out.
func New(out io.Writer, level Level) *Logger {
	return &Logger{level: level, out: out}
}

var defaultLogger = New(os.Stderr, INFO)

// Default returns the package-level logger.
func Default() *Logger { return defaultLogger }

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) {
	defaultLogger.mu.Lock()
	defaultLogger.level = l
	defaultLogger.mu.Unlock()
}

// SetOutput redirects the default logger.
func SetOutput(w io.Writer) {
	defaultLogger.mu.Lock()
	defaultLogger.out = w
	defaultLogger.mu.Unlock()
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { defaultLogger.log(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { defaultLogger.log(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.log(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { defaultLogger.log(ERROR, msg, fields...) }

// With returns a child logger that adds fields to every entry. The child
// shares the parent's writer and level at the time of the call.
func (l *Logger) With(fields ...interface{}) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	merged := make([]interface{}, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &Logger{level: l.level, out: l.out, fields: merged}
}

func (l *Logger) Debug(msg string, fields ...interface{}) { l.log(DEBUG, msg, fields...) }
func (l *Logger) Info(msg string, fields ...interface{})  { l.log(INFO, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...interface{})  { l.log(WARN, msg, fields...) }
func (l *Logger) Error(msg string, fields ...interface{}) { l.log(ERROR, msg, fields...) }

func (l *Logger) log(level Level, msg string, fields ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	entry := map[string]interface{}{
		"time":  time.Now().UTC().Format(time.RFC3339),
		"level": levelNames[level],
		"msg":   msg,
	}
	addFields(entry, l.fields)
	addFields(entry, fields)

	data, _ := json.Marshal(entry)
	fmt.Fprintln(l.out, string(data))
}

// addFields copies key/value pairs into entry. A trailing key without a
// value is dropped. Errors are stored as their message.
func addFields(entry map[string]interface{}, fields []interface{}) {
	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		switch v := fields[i+1].(type) {
		case error:
			entry[key] = v.Error()
		case fmt.Stringer:
			entry[key] = v.String()
		case string, bool, int, int64, float64:
			entry[key] = v
		default:
			entry[key] = fmt.Sprintf("%v", v)
		}
	}
}
