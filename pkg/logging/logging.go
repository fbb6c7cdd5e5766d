// pkg/logging/logging.go
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/windowsadmins/msiextract/pkg/config"
)

// LogLevel represents the severity of the log message.
type LogLevel int

const (
	// Define log levels.
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// String returns the string representation of the LogLevel.
func (ll LogLevel) String() string {
	switch ll {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a configuration string onto a LogLevel. Unknown values yield LevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return LevelError
	case "WARN", "WARNING":
		return LevelWarn
	case "DEBUG":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// Logger encapsulates the logging functionality.
type Logger struct {
	mu       sync.RWMutex
	logger   *log.Logger
	logLevel LogLevel
	logFile  *os.File
}

// instance starts as a stderr logger so packages can log before Init runs.
var (
	instance = &Logger{
		logger:   log.New(os.Stderr, "", log.Ldate|log.Ltime|log.LUTC),
		logLevel: LevelInfo,
	}
	once sync.Once
)

// Init initializes the singleton Logger based on the provided configuration.
func Init(cfg *config.Configuration) error {
	var initErr error
	once.Do(func() {
		initErr = ReInit(cfg)
	})
	return initErr
}

// newLogger creates a new Logger instance based on the configuration.
func newLogger(cfg *config.Configuration) (*Logger, error) {
	var (
		out  io.Writer = os.Stderr
		file *os.File
	)

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		out = io.MultiWriter(os.Stderr, file)
	}

	level := ParseLevel(cfg.LogLevel)

	// Override log level based on verbose and debug flags.
	if cfg.Debug {
		level = LevelDebug
	} else if cfg.Verbose && level < LevelInfo {
		level = LevelInfo
	}

	return &Logger{
		logger:   log.New(out, "", log.Ldate|log.Ltime|log.LUTC),
		logLevel: level,
		logFile:  file,
	}, nil
}

// CloseLogger closes the log file if it's open.
func CloseLogger() {
	instance.mu.Lock()
	defer instance.mu.Unlock()

	if instance.logFile != nil {
		if err := instance.logFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close log file: %v\n", err)
		}
		instance.logFile = nil
	}
}

// SetOutput redirects all log output to w at the given level, detaching any log file.
func SetOutput(w io.Writer, level LogLevel) {
	CloseLogger()

	instance.mu.Lock()
	defer instance.mu.Unlock()
	instance.logger = log.New(w, "", 0)
	instance.logLevel = level
}

// logMessage logs a message at the specified level with optional key-value pairs.
func (l *Logger) logMessage(level LogLevel, message string, keyValues ...interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if level > l.logLevel {
		return
	}

	// Ensure even number of keyValues.
	if len(keyValues)%2 != 0 {
		keyValues = append(keyValues, "MISSING_VALUE")
	}

	var b strings.Builder
	b.WriteString(level.String())
	b.WriteString(": ")
	b.WriteString(message)
	for i := 0; i < len(keyValues); i += 2 {
		key, ok := keyValues[i].(string)
		if !ok {
			key = fmt.Sprintf("NON_STRING_KEY_%d", i)
		}
		fmt.Fprintf(&b, " %s=%v", key, keyValues[i+1])
	}

	// Append timestamp in UTC if debugging.
	if l.logLevel >= LevelDebug {
		fmt.Fprintf(&b, " (timestamp=%s)", time.Now().UTC().Format(time.RFC3339Nano))
	}

	l.logger.Println(b.String())

	if l.logFile != nil {
		if err := l.logFile.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync log file: %v\n", err)
		}
	}
}

// Info logs informational messages.
func Info(message string, keyValues ...interface{}) {
	instance.logMessage(LevelInfo, message, keyValues...)
}

// Debug logs debug messages.
func Debug(message string, keyValues ...interface{}) {
	instance.logMessage(LevelDebug, message, keyValues...)
}

// Warn logs warning messages.
func Warn(message string, keyValues ...interface{}) {
	instance.logMessage(LevelWarn, message, keyValues...)
}

// Error logs error messages.
func Error(message string, keyValues ...interface{}) {
	instance.logMessage(LevelError, message, keyValues...)
}

// ReInit re-initializes the logger (e.g., after configuration reload).
// It closes the existing log file and creates a new one.
func ReInit(cfg *config.Configuration) error {
	next, err := newLogger(cfg)
	if err != nil {
		return err
	}

	CloseLogger()

	instance.mu.Lock()
	instance.logger = next.logger
	instance.logLevel = next.logLevel
	instance.logFile = next.logFile
	instance.mu.Unlock()

	Debug("Logger initialized", "log_level", next.logLevel, "verbose", cfg.Verbose, "debug", cfg.Debug)
	return nil
}
