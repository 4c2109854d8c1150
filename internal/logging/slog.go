package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	opLogger atomic.Pointer[slog.Logger]
	logLevel = new(slog.LevelVar)
)

func init() {
	logLevel.Set(slog.LevelInfo)
	opLogger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// Op returns the operational logger used for daemon and infrastructure logs
// (cache backend transitions, upstream failures, startup). Per-request access
// entries go through AccessLogger instead.
func Op() *slog.Logger {
	return opLogger.Load()
}

// Component returns the operational logger tagged with a component name.
func Component(name string) *slog.Logger {
	return Op().With("component", name)
}

// SetLevel changes the level of the operational logger.
func SetLevel(level slog.Level) {
	logLevel.Set(level)
}

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" (any case)
// to a slog level.
func ParseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// SetLevelFromString sets the level from a string. Unknown values are ignored.
func SetLevelFromString(level string) {
	if l, ok := ParseLevel(level); ok {
		logLevel.Set(l)
	}
}

// InitStructured reconfigures the operational logger.
// format: "text" (default) or "json" (Loki/ELK compatible)
func InitStructured(format, level string) {
	InitStructuredTo(os.Stderr, format, level)
}

// InitStructuredTo is InitStructured with an explicit destination.
func InitStructuredTo(w io.Writer, format, level string) {
	SetLevelFromString(level)
	opLogger.Store(slog.New(newHandler(w, format)))
}

// OpWithTrace returns the operational logger with trace context fields.
func OpWithTrace(traceID, spanID string) *slog.Logger {
	l := opLogger.Load()
	if traceID == "" {
		return l
	}
	args := []any{"trace_id", traceID}
	if spanID != "" {
		args = append(args, "span_id", spanID)
	}
	return l.With(args...)
}

func newHandler(w io.Writer, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: logLevel}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
