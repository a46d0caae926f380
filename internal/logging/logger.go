package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a LOG_LEVEL style string into a LogLevel
func ParseLevel(raw string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return DEBUG, nil
	case "info", "":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "fatal":
		return FATAL, nil
	default:
		return INFO, fmt.Errorf("unknown log level %q", raw)
	}
}

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorPurple = "\033[35m"
	ColorGray   = "\033[37m"
)

// Logger provides structured logging capabilities
type Logger struct {
	mu         sync.Mutex
	level      LogLevel
	prefix     string
	colored    bool
	out        io.Writer
	fileLogger *log.Logger
	file       *os.File
}

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// Config holds logger configuration
type Config struct {
	Level       LogLevel
	Prefix      string
	Colored     bool
	LogToFile   bool
	LogFilePath string
	// Output receives console lines; stdout when nil.
	Output io.Writer
}

// NewLogger creates a new logger instance
func NewLogger(config Config) (*Logger, error) {
	logger := &Logger{
		level:   config.Level,
		prefix:  config.Prefix,
		colored: config.Colored,
		out:     config.Output,
	}
	if logger.out == nil {
		logger.out = os.Stdout
	}

	if config.LogToFile {
		if config.LogFilePath == "" {
			config.LogFilePath = "logs/battled.log"
		}

		if err := os.MkdirAll(filepath.Dir(config.LogFilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(config.LogFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		logger.file = file
		logger.fileLogger = log.New(file, "", 0)
	}

	return logger, nil
}

// InitDefaultLogger initializes the global logger
func InitDefaultLogger(config Config) error {
	logger, err := NewLogger(config)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
	return nil
}

// Close closes the logger and any open files
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// formatMessage formats a log message with timestamp, level, caller info, and message
func (l *Logger) formatMessage(level LogLevel, msg string, context map[string]interface{}, colored bool) string {
	_, file, line, ok := runtime.Caller(4)
	caller := "unknown"
	if ok {
		caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")

	// Keys are sorted so the same event always renders the same way.
	var contextStr string
	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, context[k]))
		}
		contextStr = fmt.Sprintf(" [%s]", strings.Join(pairs, " "))
	}

	baseMsg := fmt.Sprintf("[%s] %s %s %s%s", timestamp, level.String(), caller, msg, contextStr)

	if colored {
		var color string
		switch level {
		case DEBUG:
			color = ColorGray
		case INFO:
			color = ColorBlue
		case WARN:
			color = ColorYellow
		case ERROR:
			color = ColorRed
		case FATAL:
			color = ColorPurple
		}
		if color != "" {
			baseMsg = color + baseMsg + ColorReset
		}
	}

	if l.prefix != "" {
		baseMsg = fmt.Sprintf("[%s] %s", l.prefix, baseMsg)
	}

	return baseMsg
}

func (l *Logger) log(level LogLevel, msg string, context map[string]interface{}) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	fmt.Fprintln(l.out, l.formatMessage(level, msg, context, l.colored))
	if l.fileLogger != nil {
		// File output never carries ANSI codes
		l.fileLogger.Println(l.formatMessage(level, msg, context, false))
	}
	l.mu.Unlock()

	if level == FATAL {
		os.Exit(1)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, context ...map[string]interface{}) {
	l.log(DEBUG, msg, mergeContext(context...))
}

// Info logs an info message
func (l *Logger) Info(msg string, context ...map[string]interface{}) {
	l.log(INFO, msg, mergeContext(context...))
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, context ...map[string]interface{}) {
	l.log(WARN, msg, mergeContext(context...))
}

// Error logs an error message
func (l *Logger) Error(msg string, context ...map[string]interface{}) {
	l.log(ERROR, msg, mergeContext(context...))
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, context ...map[string]interface{}) {
	l.log(FATAL, msg, mergeContext(context...))
}

func current() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// Convenience functions for global logger
func Debug(msg string, context ...map[string]interface{}) {
	if l := current(); l != nil {
		l.Debug(msg, context...)
	}
}

func Info(msg string, context ...map[string]interface{}) {
	if l := current(); l != nil {
		l.Info(msg, context...)
	}
}

func Warn(msg string, context ...map[string]interface{}) {
	if l := current(); l != nil {
		l.Warn(msg, context...)
	}
}

func Error(msg string, context ...map[string]interface{}) {
	if l := current(); l != nil {
		l.Error(msg, context...)
	}
}

func Fatal(msg string, context ...map[string]interface{}) {
	if l := current(); l != nil {
		l.Fatal(msg, context...)
	}
}

func mergeContext(contexts ...map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for _, ctx := range contexts {
		for k, v := range ctx {
			result[k] = v
		}
	}
	return result
}

func withEvent(base map[string]interface{}, details map[string]interface{}) map[string]interface{} {
	for k, v := range details {
		base[k] = v
	}
	return base
}

// LogBattleEvent logs battle lifecycle transitions
func LogBattleEvent(event string, battleID string, details map[string]interface{}) {
	Info("Battle Event", withEvent(map[string]interface{}{
		"event":     event,
		"battle_id": battleID,
	}, details))
}

// LogSchedulerEvent logs timer arming, firing and clearing
func LogSchedulerEvent(event string, details map[string]interface{}) {
	Debug("Scheduler Event", withEvent(map[string]interface{}{
		"event": event,
	}, details))
}

// LogBroadcastEvent logs subscriber bookkeeping on the event stream
func LogBroadcastEvent(event string, details map[string]interface{}) {
	Debug("Broadcast Event", withEvent(map[string]interface{}{
		"event": event,
	}, details))
}

// LogHTTPRequest logs HTTP requests
func LogHTTPRequest(method string, path string, statusCode int, duration time.Duration, details map[string]interface{}) {
	Info("HTTP Request", withEvent(map[string]interface{}{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}, details))
}

// LogDatabaseEvent logs database operations
func LogDatabaseEvent(operation string, table string, details map[string]interface{}) {
	Debug("Database Event", withEvent(map[string]interface{}{
		"operation": operation,
		"table":     table,
	}, details))
}

// GetDefaultLogger returns the default logger instance
func GetDefaultLogger() *Logger {
	return current()
}
