// Package logx provides leveled, component-prefixed logging with env-driven
// debug domains and an in-memory ring buffer for the diagnostics endpoint.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level identifies the severity of a log entry.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger writes leveled log lines tagged with a component name.
type Logger struct {
	component string
	logger    *log.Logger
}

// Entry is a structured log record kept in the ring buffer.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// debugSettings controls which components emit debug lines. Populated from the
// environment once at startup; mutable afterwards for tests.
type debugSettings struct {
	enabled bool
	domains map[string]bool // nil = all components
}

const ringCapacity = 1000

//nolint:gochecknoglobals // Package-level logging state, mirrors stdlib log.
var (
	debugMu  sync.RWMutex
	debugCfg = debugSettings{}

	ringMu sync.RWMutex
	ring   []Entry
)

//nolint:gochecknoinits // Env var initialization must run before first log line.
func init() {
	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		debugCfg.enabled = true
	}
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugCfg.domains = make(map[string]bool)
		for _, d := range strings.Split(domains, ",") {
			debugCfg.domains[strings.TrimSpace(d)] = true
		}
	}
}

// NewLogger creates a logger for the named component.
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(os.Stderr, "", 0), // stderr keeps stdout clean for streaming output
	}
}

// SetDebug enables or disables debug logging globally.
func SetDebug(enabled bool) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugCfg.enabled = enabled
}

// DebugEnabledFor reports whether debug lines from the component are emitted.
func DebugEnabledFor(component string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	if !debugCfg.enabled {
		return false
	}
	if debugCfg.domains == nil {
		return true
	}
	return debugCfg.domains[component]
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	l.emit(LevelInfo, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...any) {
	l.emit(LevelWarn, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.emit(LevelError, format, args...)
}

// Debug logs a debug message if debug logging is enabled for the component.
func (l *Logger) Debug(format string, args ...any) {
	if !DebugEnabledFor(l.component) {
		return
	}
	l.emit(LevelDebug, format, args...)
}

func (l *Logger) emit(level Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	l.logger.Printf("%s [%s] [%s] %s", ts, level, l.component, msg)

	record(Entry{
		Timestamp: ts,
		Component: l.component,
		Level:     string(level),
		Message:   msg,
	})
}

// record appends an entry to the ring buffer, discarding the oldest overflow.
func record(e Entry) {
	ringMu.Lock()
	defer ringMu.Unlock()

	ring = append(ring, e)
	if len(ring) > ringCapacity {
		ring = ring[len(ring)-ringCapacity:]
	}
}

// Recent returns buffered entries, newest last, optionally filtered by component.
func Recent(component string) []Entry {
	ringMu.RLock()
	defer ringMu.RUnlock()

	out := make([]Entry, 0, len(ring))
	for i := range ring {
		if component != "" && !strings.EqualFold(ring[i].Component, component) {
			continue
		}
		out = append(out, ring[i])
	}
	return out
}

// Default logger for package-level convenience functions.
//
//nolint:gochecknoglobals // Mirrors stdlib log package convenience API.
var defaultLogger = NewLogger("conductor")

// Infof logs an informational message via the default logger.
func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

// Warnf logs a warning via the default logger.
func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs an error via the default logger and returns it for convenience.
func Errorf(format string, args ...any) error {
	defaultLogger.Error(format, args...)
	return fmt.Errorf(format, args...)
}
