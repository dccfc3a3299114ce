// Package structlog writes one JSON object per log line with a fixed set of
// standard keys (timestamp, level, service, message) plus caller fields.
package structlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level represents log severity
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

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
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a case-insensitive level name to a Level. Unknown names
// fall back to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	default:
		return LevelInfo
	}
}

type ctxKeyCorrID struct{}

// Fields represents structured log fields
type Fields map[string]interface{}

// Logger provides structured logging with correlation ID support.
// A nil *Logger discards everything.
type Logger struct {
	service string
	level   Level
	out     *syncWriter
	fields  Fields
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLogger creates a structured logger for a service
func NewLogger(service string, level Level, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	return &Logger{service: service, level: level, out: &syncWriter{w: output}, fields: Fields{}}
}

// Nop returns a logger that writes nothing.
func Nop() *Logger { return NewLogger("nop", LevelFatal+1, io.Discard) }

// WithFields returns a child logger carrying additional base fields.
func (l *Logger) WithFields(fields Fields) *Logger {
	if l == nil {
		return nil
	}
	child := &Logger{service: l.service, level: l.level, out: l.out, fields: make(Fields, len(l.fields)+len(fields))}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for k, v := range fields {
		child.fields[k] = v
	}
	return child
}

// WithContext adds the correlation ID carried by ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if corrID := CorrelationID(ctx); corrID != "" {
		return l.WithFields(Fields{"correlation_id": corrID})
	}
	return l
}

func (l *Logger) Debug(message string, fields Fields) { l.log(LevelDebug, message, fields) }
func (l *Logger) Info(message string, fields Fields)  { l.log(LevelInfo, message, fields) }
func (l *Logger) Warn(message string, fields Fields)  { l.log(LevelWarn, message, fields) }
func (l *Logger) Error(message string, fields Fields) { l.log(LevelError, message, fields) }

// Fatal logs and exits the process.
func (l *Logger) Fatal(message string, fields Fields) {
	l.log(LevelFatal, message, fields)
	os.Exit(1)
}

// Audit records an administrative action such as a model retrain.
func (l *Logger) Audit(action string, fields Fields) {
	merged := Fields{"event_type": "audit", "audit_action": action}
	for k, v := range fields {
		merged[k] = v
	}
	l.log(LevelInfo, "AUDIT: "+action, merged)
}

// Enabled reports whether level would be written.
func (l *Logger) Enabled(level Level) bool { return l != nil && level >= l.level }

func (l *Logger) log(level Level, message string, fields Fields) {
	if !l.Enabled(level) {
		return
	}
	all := make(Fields, len(l.fields)+len(fields)+6)
	for k, v := range l.fields {
		all[k] = v
	}
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		all[k] = v
	}
	all["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	all["level"] = level.String()
	all["service"] = l.service
	all["message"] = message

	if level >= LevelError {
		if _, file, line, ok := runtime.Caller(2); ok {
			all["caller"] = fmt.Sprintf("%s:%d", file, line)
		}
	}
	sanitize(all)

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	if err := json.NewEncoder(l.out.w).Encode(all); err != nil {
		fmt.Fprintf(os.Stderr, "LOG_ERROR: failed to encode log: %v\n", err)
	}
}

var sensitive = []string{"password", "secret", "token", "apikey", "authorization"}

func sanitize(fields Fields) {
	for k := range fields {
		lk := strings.ToLower(k)
		for _, s := range sensitive {
			if strings.Contains(lk, s) {
				fields[k] = "MASKED"
				break
			}
		}
	}
}

// ContextWithCorrelationID returns ctx carrying corrID.
func ContextWithCorrelationID(ctx context.Context, corrID string) context.Context {
	return context.WithValue(ctx, ctxKeyCorrID{}, corrID)
}

// CorrelationID extracts the correlation ID from ctx.
func CorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if corrID, ok := ctx.Value(ctxKeyCorrID{}).(string); ok {
		return corrID
	}
	return ""
}

// EnsureCorrelationID returns ctx with a correlation ID, minting one if needed.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if corrID := CorrelationID(ctx); corrID != "" {
		return ctx, corrID
	}
	corrID := uuid.NewString()
	return ContextWithCorrelationID(ctx, corrID), corrID
}
