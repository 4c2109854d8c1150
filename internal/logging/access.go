package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// RequestLog is one access log entry for an API request.
type RequestLog struct {
	Timestamp  time.Time
	RequestID  string
	TraceID    string
	SpanID     string
	Method     string
	Route      string
	UserID     string
	Status     int
	DurationMs int64
	FromCache  bool
	Error      string
}

// AccessLogger writes request logs as JSON lines, optionally mirrored to a file.
type AccessLogger struct {
	mu      sync.Mutex
	enabled bool
	logger  *slog.Logger
	file    *os.File
}

var defaultAccess = NewAccessLogger(os.Stdout)

// Access returns the process access logger.
func Access() *AccessLogger {
	return defaultAccess
}

// NewAccessLogger creates an access logger writing to w.
func NewAccessLogger(w io.Writer) *AccessLogger {
	return &AccessLogger{
		enabled: true,
		logger:  slog.New(slog.NewJSONHandler(w, nil)),
	}
}

// SetEnabled toggles access logging.
func (l *AccessLogger) SetEnabled(enabled bool) {
	l.mu.Lock()
	l.enabled = enabled
	l.mu.Unlock()
}

// SetOutput redirects access logs to an append-only file.
func (l *AccessLogger) SetOutput(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
	}
	l.file = f
	l.logger = slog.New(slog.NewJSONHandler(f, nil))
	return nil
}

// Log writes one entry. A zero Timestamp is filled with the current time.
func (l *AccessLogger) Log(entry RequestLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	attrs := []slog.Attr{
		slog.Time("timestamp", entry.Timestamp),
		slog.String("method", entry.Method),
		slog.String("route", entry.Route),
		slog.Int("status", entry.Status),
		slog.Int64("duration_ms", entry.DurationMs),
		slog.Bool("from_cache", entry.FromCache),
	}
	if entry.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", entry.RequestID))
	}
	if entry.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", entry.TraceID))
	}
	if entry.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", entry.SpanID))
	}
	if entry.UserID != "" {
		attrs = append(attrs, slog.String("user_id", entry.UserID))
	}
	if entry.Error != "" {
		attrs = append(attrs, slog.String("error", entry.Error))
	}
	l.logger.LogAttrs(context.Background(), slog.LevelInfo, "request", attrs...)
}

// Close closes the log file, if any.
func (l *AccessLogger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
