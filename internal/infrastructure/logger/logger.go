package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/haxorport/haxorport-ports/internal/domain/port"
)

// ParseLevel converts a string to a zap level, defaulting to info
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger is an implementation of port.Logger on top of zap
type Logger struct {
	sugar   *zap.SugaredLogger
	level   zap.AtomicLevel
	closers []io.Closer
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

// NewLogger creates a new Logger writing console-formatted entries to writer
func NewLogger(writer io.Writer, level string) *Logger {
	atom := zap.NewAtomicLevelAt(ParseLevel(level))
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.AddSync(writer), atom)

	l := &Logger{
		sugar: zap.New(core).Sugar(),
		level: atom,
	}
	if closer, ok := writer.(io.Closer); ok && writer != os.Stdout && writer != os.Stderr {
		l.closers = append(l.closers, closer)
	}
	return l
}

// NewFileLogger creates a logger that writes to stdout and to a rotated log file
func NewFileLogger(filePath string, level string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}

	atom := zap.NewAtomicLevelAt(ParseLevel(level))
	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.Lock(os.Stdout), atom),
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(rotator), atom),
	)

	return &Logger{
		sugar:   zap.New(core).Sugar(),
		level:   atom,
		closers: []io.Closer{rotator},
	}, nil
}

// SetLevel changes the logging level for this logger and every logger derived from it
func (l *Logger) SetLevel(level string) {
	l.level.SetLevel(ParseLevel(level))
}

// Named returns a logger scoped to a component
func (l *Logger) Named(name string) port.Logger {
	return &Logger{
		sugar: l.sugar.Named(name),
		level: l.level,
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Close flushes the logger and closes the log file, if any
func (l *Logger) Close() error {
	_ = l.sugar.Sync()
	var err error
	for _, c := range l.closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// Ensure Logger implements port.Logger
var _ port.Logger = (*Logger)(nil)
