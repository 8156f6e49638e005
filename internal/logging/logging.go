package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	currentLevel LogLevel
	levelOnce    sync.Once
	levelMu      sync.RWMutex
)

// ParseLevel maps the DEBUG and LOG_LEVEL environment values to a level.
// DEBUG wins when it holds a truthy value; anything unrecognised is Info.
func ParseLevel(debug, level string) LogLevel {
	switch strings.ToLower(debug) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}

	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// initLevel initializes the log level from environment variables
func initLevel() {
	levelOnce.Do(func() {
		lvl := ParseLevel(os.Getenv("DEBUG"), os.Getenv("LOG_LEVEL"))
		levelMu.Lock()
		currentLevel = lvl
		levelMu.Unlock()
	})
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	levelMu.RLock()
	defer levelMu.RUnlock()
	return currentLevel
}

// SetLevel overrides the level read from the environment. Used by the CLI
// verbosity flag and by tests.
func SetLevel(l LogLevel) {
	initLevel()
	levelMu.Lock()
	currentLevel = l
	levelMu.Unlock()
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	if GetLevel() <= LevelDebug {
		log.Printf("[DEBUG] "+format, args...)
	}
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	if GetLevel() <= LevelInfo {
		log.Printf("[INFO] "+format, args...)
	}
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	if GetLevel() <= LevelWarn {
		log.Printf("[WARN] "+format, args...)
	}
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	if GetLevel() <= LevelError {
		log.Printf("[ERROR] "+format, args...)
	}
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	log.Fatalf("[FATAL] "+format, args...)
}

// Printf is a pass-through to log.Printf for messages that should always print
func Printf(format string, args ...interface{}) {
	log.Printf(format, args...)
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

// Logger prefixes every message with a component name so that cache,
// catalog and transcoder output can be told apart in a shared log.
type Logger struct {
	prefix string
}

// For returns a Logger for the named component.
func For(component string) *Logger {
	return &Logger{prefix: "[" + component + "] "}
}

// Debug logs a component debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	Debug(l.prefix+format, args...)
}

// Info logs a component info message
func (l *Logger) Info(format string, args ...interface{}) {
	Info(l.prefix+format, args...)
}

// Warn logs a component warning
func (l *Logger) Warn(format string, args ...interface{}) {
	Warn(l.prefix+format, args...)
}

// Error logs a component error
func (l *Logger) Error(format string, args ...interface{}) {
	Error(l.prefix+format, args...)
}
