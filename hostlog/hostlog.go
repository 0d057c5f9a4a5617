// Package hostlog is the shared logger for the host-side tools: a console
// core plus a size-rotated file core. The firmware core never logs.
package hostlog

import (
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

func newEncoder() zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		MessageKey:       "message",
		LevelKey:         "level",
		TimeKey:          "time",
		CallerKey:        "caller",
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		ConsoleSeparator: " ",
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}

// Init configures the global logger. logfile may be empty for
// console-only output.
func Init(level zapcore.Level, logfile string) {
	encoder := newEncoder()
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}

	if logfile != "" {
		rotated := &lumberjack.Logger{
			Filename:   logfile,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     14, // days
			LocalTime:  true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotated), level))
	}

	logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
}

// Sync flushes buffered log entries.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}

func Debugf(format string, args ...interface{}) {
	if logger != nil {
		logger.Sugar().Debugf(format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if logger != nil {
		logger.Sugar().Infof(format, args...)
	}
}

func Warnf(format string, args ...interface{}) {
	if logger != nil {
		logger.Sugar().Warnf(format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if logger != nil {
		logger.Sugar().Errorf(format, args...)
	}
}
