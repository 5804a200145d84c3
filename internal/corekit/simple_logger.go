package corekit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel orders log severities for filtering.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func parseLevel(s string) LogLevel {
	switch s {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// SimpleLogger is a production-usable Logger backed by an io.Writer.
// NewSimpleLoggerFromEnv configures level and format from caller-supplied
// strings (typically values the caller read from the environment),
// matching the teacher's logger package conventions.
type SimpleLogger struct {
	out       io.Writer
	mu        sync.Mutex
	level     LogLevel
	format    string // "json" or "text"
	component string
	fields    map[string]interface{}
}

// NewSimpleLogger creates a logger writing JSON lines to stdout at info level.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{out: os.Stdout, level: InfoLevel, format: "json"}
}

// NewSimpleLoggerFromEnv builds a logger from level and format strings;
// it does not read the environment itself.
func NewSimpleLoggerFromEnv(levelEnv, formatEnv string) *SimpleLogger {
	l := NewSimpleLogger()
	if levelEnv != "" {
		l.level = parseLevel(levelEnv)
	}
	if formatEnv == "text" {
		l.format = "text"
	}
	return l
}

func (l *SimpleLogger) clone() *SimpleLogger {
	fields := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		fields[k] = v
	}
	return &SimpleLogger{out: l.out, level: l.level, format: l.format, component: l.component, fields: fields}
}

// WithComponent returns a child logger tagging every entry with component.
func (l *SimpleLogger) WithComponent(component string) Logger {
	c := l.clone()
	c.component = component
	return c
}

// WithFields returns a child logger that merges fields into every entry.
func (l *SimpleLogger) WithFields(fields map[string]interface{}) *SimpleLogger {
	c := l.clone()
	for k, v := range fields {
		c.fields[k] = v
	}
	return c
}

func (l *SimpleLogger) log(level LogLevel, levelName string, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}
	merged := make(map[string]interface{}, len(l.fields)+len(fields)+3)
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	merged["level"] = levelName
	merged["msg"] = msg
	merged["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	if l.component != "" {
		merged["component"] = l.component
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.format == "text" {
		fmt.Fprintf(l.out, "%s [%s] %s %v\n", merged["time"], levelName, msg, fields)
		return
	}
	enc := json.NewEncoder(l.out)
	_ = enc.Encode(merged)
}

func (l *SimpleLogger) Info(msg string, fields map[string]interface{})  { l.log(InfoLevel, "info", msg, fields) }
func (l *SimpleLogger) Error(msg string, fields map[string]interface{}) { l.log(ErrorLevel, "error", msg, fields) }
func (l *SimpleLogger) Warn(msg string, fields map[string]interface{})  { l.log(WarnLevel, "warn", msg, fields) }
func (l *SimpleLogger) Debug(msg string, fields map[string]interface{}) { l.log(DebugLevel, "debug", msg, fields) }

func (l *SimpleLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(InfoLevel, "info", msg, withRequestID(ctx, fields))
}
func (l *SimpleLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(ErrorLevel, "error", msg, withRequestID(ctx, fields))
}
func (l *SimpleLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(WarnLevel, "warn", msg, withRequestID(ctx, fields))
}
func (l *SimpleLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(DebugLevel, "debug", msg, withRequestID(ctx, fields))
}

type requestIDKey struct{}

// ContextWithRequestID attaches a request id for log correlation.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func withRequestID(ctx context.Context, fields map[string]interface{}) map[string]interface{} {
	id, ok := ctx.Value(requestIDKey{}).(string)
	if !ok || id == "" {
		return fields
	}
	merged := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged["request_id"] = id
	return merged
}

var _ ComponentAwareLogger = (*SimpleLogger)(nil)
