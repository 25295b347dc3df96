package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kyleking/current/internal/config"
)

// File permissions for log directories
const logDirPerm = 0755

// Logger provides structured logging on top of a zap sugared logger
type Logger struct {
	sugar *zap.SugaredLogger
	base  *zap.Logger
}

// Global logger instance
var (
	globalLogger *Logger
	loggerOnce   sync.Once
	globalMu     sync.RWMutex
)

// InitializeLogger initializes the global logger with the given configuration
func InitializeLogger(cfg config.LoggingConfig) error {
	var err error

	loggerOnce.Do(func() {
		var logger *Logger

		logger, err = NewLogger(cfg)
		if err == nil {
			SetLogger(logger)
		}
	})

	return err
}

// NewLogger creates a new logger with the given configuration
func NewLogger(cfg config.LoggingConfig) (*Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.Sampling = nil
	zcfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	zcfg.DisableCaller = level != zapcore.DebugLevel
	zcfg.DisableStacktrace = true

	if strings.ToLower(cfg.Format) == "json" {
		zcfg.Encoding = "json"
	} else {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	switch strings.ToLower(cfg.Output) {
	case "stdout":
		zcfg.OutputPaths = []string{"stdout"}
	case "stderr", "":
		zcfg.OutputPaths = []string{"stderr"}
	case "file":
		if cfg.File == "" {
			return nil, errors.New("log file path is required when output is 'file'")
		}

		path := config.ExpandPath(cfg.File)
		if err := os.MkdirAll(filepath.Dir(path), logDirPerm); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		zcfg.OutputPaths = []string{path}
	default:
		return nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	zcfg.ErrorOutputPaths = []string{"stderr"}

	base, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return FromZap(base), nil
}

// FromZap wraps an existing zap logger
func FromZap(base *zap.Logger) *Logger {
	return &Logger{sugar: base.Sugar(), base: base}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return FromZap(zap.NewNop())
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(key, value), base: l.base}
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}

	return &Logger{sugar: l.sugar.With(args...), base: l.base}
}

// WithError adds an error to the logger context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}

	return &Logger{sugar: l.sugar.With(zap.Error(err)), base: l.base}
}

// Debug logs a debug message
func (l *Logger) Debug(message string) { l.sugar.Debug(message) }

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info logs an info message
func (l *Logger) Info(message string) { l.sugar.Info(message) }

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn logs a warning message
func (l *Logger) Warn(message string) { l.sugar.Warn(message) }

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error logs an error message
func (l *Logger) Error(message string) { l.sugar.Error(message) }

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// ErrorWithErr logs an error message with an associated error
func (l *Logger) ErrorWithErr(message string, err error) {
	l.sugar.Errorw(message, zap.Error(err))
}

// Zap exposes the underlying zap logger
func (l *Logger) Zap() *zap.Logger {
	return l.base
}

// Close flushes buffered entries
func (l *Logger) Close() error {
	err := l.base.Sync()
	// Sync on a terminal returns EINVAL or ENOTTY on some platforms.
	if err != nil && (errors.Is(err, os.ErrInvalid) || strings.Contains(err.Error(), "inappropriate ioctl")) {
		return nil
	}

	return err
}

// SetLogger replaces the global logger
func SetLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()

	globalLogger = logger
}

// GetLogger returns the global logger instance, never nil
func GetLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()

	if globalLogger == nil {
		return Nop()
	}

	return globalLogger
}

// SetupFallbackLogger sets up a basic logger for cases where configuration fails
func SetupFallbackLogger() {
	logger, err := NewLogger(config.LoggingConfig{Level: "info", Format: "text", Output: "stderr"})
	if err != nil {
		logger = Nop()
	}

	SetLogger(logger)
}

// Global logging functions that use the global logger

// Debugf logs a formatted debug message using the global logger
func Debugf(format string, args ...interface{}) { GetLogger().Debugf(format, args...) }

// Infof logs a formatted info message using the global logger
func Infof(format string, args ...interface{}) { GetLogger().Infof(format, args...) }

// Warnf logs a formatted warning message using the global logger
func Warnf(format string, args ...interface{}) { GetLogger().Warnf(format, args...) }

// Errorf logs a formatted error message using the global logger
func Errorf(format string, args ...interface{}) { GetLogger().Errorf(format, args...) }

// WithField adds a field to the global logger context
func WithField(key string, value interface{}) *Logger {
	return GetLogger().WithField(key, value)
}

// WithFields adds multiple fields to the global logger context
func WithFields(fields map[string]interface{}) *Logger {
	return GetLogger().WithFields(fields)
}

// LoggerMiddleware provides a way to wrap functions with logging
func LoggerMiddleware(operation string, fn func() error) error {
	logger := WithField("operation", operation)
	logger.Debug("Starting operation")

	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if err != nil {
		logger.WithField("duration", duration).ErrorWithErr("Operation failed", err)
	} else {
		logger.WithField("duration", duration).Debug("Operation completed successfully")
	}

	return err
}
