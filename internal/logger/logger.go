// Package logger provides structured logging and run metrics for fomc-docs.
//
// Log calls take a message plus optional Fields and are rendered through log/slog,
// either as JSON (the default, for machine parsing of collection runs) or as text
// for interactive use. Every collection run attaches its run_id via With.
//
// Example usage:
//
//	log := logger.New(logger.LevelInfo, os.Stderr).With(logger.Fields{"run_id": id})
//	log.Info("meeting resolved", logger.Fields{
//	    "date":       "2024-03-20",
//	    "candidates": 1,
//	})
//
//	log.Error("calendar fetch failed", logger.Fields{"url": u}, err)
//
//	metrics := logger.NewMetrics()
//	metrics.IncrCounter("fetch.attempts")
//	metrics.RecordTiming("fetch.page", duration)
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Format selects the log encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// ParseLevel maps a case-insensitive level name to a Level, defaulting to INFO
func ParseLevel(s string) Level {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "WARNING":
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger provides structured logging
type Logger struct {
	minLevel Level
	base     *slog.Logger
}

// Fields represents structured log fields
type Fields map[string]interface{}

var defaultLogger *Logger

func init() {
	defaultLogger = New(LevelInfo, os.Stderr)
}

// New creates a JSON logger with the specified minimum log level and output destination.
// Messages below the minimum level will be discarded.
func New(level Level, output io.Writer) *Logger {
	return NewWithFormat(level, FormatJSON, output)
}

// NewWithFormat creates a logger using the given encoding
func NewWithFormat(level Level, format Format, output io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: level.slogLevel()}
	var handler slog.Handler
	if format == FormatText {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}
	return &Logger{minLevel: level, base: slog.New(handler)}
}

// SetDefault sets the default package-level logger used by the convenience functions
// (Debug, Info, Warn, Error).
func SetDefault(logger *Logger) {
	defaultLogger = logger
}

// Default returns the package-level logger
func Default() *Logger {
	return defaultLogger
}

// With returns a logger that adds fields to every entry
func (l *Logger) With(fields Fields) *Logger {
	return &Logger{minLevel: l.minLevel, base: l.base.With(toArgs(fields)...)}
}

// log writes a structured log entry
func (l *Logger) log(level Level, message string, fields Fields, err error) {
	if !l.shouldLog(level) {
		return
	}
	args := toArgs(fields)
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	l.base.Log(context.Background(), level.slogLevel(), message, args...)
}

// shouldLog determines if a message should be logged based on level
func (l *Logger) shouldLog(level Level) bool {
	return level.slogLevel() >= l.minLevel.slogLevel()
}

// toArgs converts fields to slog attributes in key order so output is stable
func toArgs(fields Fields) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys))
	for _, k := range keys {
		args = append(args, slog.Any(k, fields[k]))
	}
	return args
}

// Debug logs a debug message with optional structured fields.
func (l *Logger) Debug(message string, fields Fields) {
	l.log(LevelDebug, message, fields, nil)
}

// Info logs an informational message with optional structured fields.
func (l *Logger) Info(message string, fields Fields) {
	l.log(LevelInfo, message, fields, nil)
}

// Warn logs a warning message with optional structured fields.
// Warnings cover per-document problems that are recorded but don't stop a run.
func (l *Logger) Warn(message string, fields Fields) {
	l.log(LevelWarn, message, fields, nil)
}

// Error logs an error message with optional structured fields and an error object.
func (l *Logger) Error(message string, fields Fields, err error) {
	l.log(LevelError, message, fields, err)
}

// Package-level convenience functions using default logger

// Debug logs a debug message with the default logger
func Debug(message string, fields Fields) {
	defaultLogger.Debug(message, fields)
}

// Info logs an info message with the default logger
func Info(message string, fields Fields) {
	defaultLogger.Info(message, fields)
}

// Warn logs a warning message with the default logger
func Warn(message string, fields Fields) {
	defaultLogger.Warn(message, fields)
}

// Error logs an error message with the default logger
func Error(message string, fields Fields, err error) {
	defaultLogger.Error(message, fields, err)
}

// Metrics holds run counters, gauges and timing aggregates. It is safe for
// concurrent use; a collection run counts fetch attempts, cache hits and
// outcomes, and times page and document fetches.
type Metrics struct {
	mu       sync.Mutex
	counters map[string]int64
	gauges   map[string]float64
	timings  map[string]*timingStats
}

// timingStats aggregates durations as they are recorded
type timingStats struct {
	count    int
	total    time.Duration
	min, max time.Duration
}

func (s *timingStats) add(d time.Duration) {
	if s.count == 0 || d < s.min {
		s.min = d
	}
	if d > s.max {
		s.max = d
	}
	s.count++
	s.total += d
}

func (s *timingStats) view() map[string]interface{} {
	return map[string]interface{}{
		"count":   s.count,
		"total":   s.total.String(),
		"average": (s.total / time.Duration(s.count)).String(),
		"min":     s.min.String(),
		"max":     s.max.String(),
	}
}

var defaultMetrics = NewMetrics()

// NewMetrics returns an empty tracker
func NewMetrics() *Metrics {
	return &Metrics{
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
		timings:  make(map[string]*timingStats),
	}
}

// IncrCounter adds one to the named counter
func (m *Metrics) IncrCounter(name string) {
	m.mu.Lock()
	m.counters[name]++
	m.mu.Unlock()
}

// Counter returns the current value of a counter
func (m *Metrics) Counter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// SetGauge overwrites the named gauge
func (m *Metrics) SetGauge(name string, value float64) {
	m.mu.Lock()
	m.gauges[name] = value
	m.mu.Unlock()
}

// RecordTiming folds one duration into the named timing
func (m *Metrics) RecordTiming(name string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, ok := m.timings[name]
	if !ok {
		stats = &timingStats{}
		m.timings[name] = stats
	}
	stats.add(duration)
}

// GetSnapshot copies the current values. The result has three keys:
// "counters" (map[string]int64), "gauges" (map[string]float64) and "timings"
// (name to count, total, average, min and max).
func (m *Metrics) GetSnapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	counters := make(map[string]int64, len(m.counters))
	for name, v := range m.counters {
		counters[name] = v
	}
	gauges := make(map[string]float64, len(m.gauges))
	for name, v := range m.gauges {
		gauges[name] = v
	}
	timings := make(map[string]map[string]interface{}, len(m.timings))
	for name, stats := range m.timings {
		timings[name] = stats.view()
	}

	return map[string]interface{}{
		"counters": counters,
		"gauges":   gauges,
		"timings":  timings,
	}
}

// DefaultMetrics returns the package-level tracker
func DefaultMetrics() *Metrics {
	return defaultMetrics
}
