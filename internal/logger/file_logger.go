package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogDir is where the debug log is written, relative to the working directory
const LogDir = ".xray-reporter"

// LogLevelEnv selects the minimum level written to the debug log
const LogLevelEnv = "XRAY_REPORTER_LOG_LEVEL"

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of a log level
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
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case INFO:
		return zapcore.InfoLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.WarnLevel
	}
}

// parseLogLevel converts a string to LogLevel, case-insensitive
func parseLogLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return WARN // Default to WARN for invalid values
	}
}

// FileLogger writes all log messages to .xray-reporter/debug.log
type FileLogger struct {
	mu    sync.Mutex
	file  *os.File
	sugar *zap.SugaredLogger
}

// NewFileLogger creates a new file-based logger in the working directory
func NewFileLogger() (*FileLogger, error) {
	return NewFileLoggerInDir(LogDir)
}

// NewFileLoggerInDir creates a file-based logger writing to dir/debug.log
func NewFileLoggerInDir(dir string) (*FileLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	logPath := filepath.Join(dir, "debug.log")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open debug log: %w", err)
	}

	header := fmt.Sprintf("\n=== xray-reporter Debug Log ===\n"+
		"Session started: %s\n"+
		"PID: %d\n"+
		"Working directory: %s\n"+
		"---\n\n",
		time.Now().Format(time.RFC3339),
		os.Getpid(),
		mustGetwd())

	if _, err := file.WriteString(header); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to write log header: %w", err)
	}

	level := parseLogLevel(os.Getenv(LogLevelEnv))
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		zapcore.AddSync(file),
		zap.NewAtomicLevelAt(level.zapLevel()),
	)

	return &FileLogger{
		file:  file,
		sugar: zap.New(core).Sugar(),
	}, nil
}

// encoderConfig renders entries as "[timestamp] [LEVEL] message"
func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:    "time",
		LevelKey:   "level",
		MessageKey: "msg",
		LineEnding: zapcore.DefaultLineEnding,
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + t.Format("2006-01-02 15:04:05.000") + "]")
		},
		EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + l.CapitalString() + "]")
		},
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
}

// Debug writes a debug message to the log file
func (l *FileLogger) Debug(format string, args ...interface{}) {
	l.with(func(s *zap.SugaredLogger) { s.Debugf(format, args...) })
}

// Info writes an info message to the log file
func (l *FileLogger) Info(format string, args ...interface{}) {
	l.with(func(s *zap.SugaredLogger) { s.Infof(format, args...) })
}

// Warn writes a warning message to the log file
func (l *FileLogger) Warn(format string, args ...interface{}) {
	l.with(func(s *zap.SugaredLogger) { s.Warnf(format, args...) })
}

// Error writes an error message to the log file and also to stderr
func (l *FileLogger) Error(format string, args ...interface{}) {
	l.with(func(s *zap.SugaredLogger) { s.Errorf(format, args...) })
	// Also write errors to stderr so they're visible to the user
	fmt.Fprintf(os.Stderr, "[ERROR] "+format+"\n", args...)
}

func (l *FileLogger) with(fn func(*zap.SugaredLogger)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sugar == nil {
		return
	}
	fn(l.sugar)
}

// Close flushes and closes the log file
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	_ = l.sugar.Sync()
	l.sugar = nil

	footer := fmt.Sprintf("\n--- Session ended: %s ---\n\n",
		time.Now().Format(time.RFC3339))
	_, _ = l.file.WriteString(footer)

	err := l.file.Close()
	l.file = nil
	return err
}

// mustGetwd returns the current working directory or "unknown"
func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "unknown"
	}
	return wd
}
