package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// base reports the caller of its own methods.
	base *zap.Logger
	// log backs the printf helpers and skips their frame.
	log *zap.Logger
)

func init() {
	set(build("info"))
}

// Init rebuilds the global logger at the given level.
func Init(level string) {
	set(build(level))
}

func set(l *zap.Logger) {
	base = l
	log = l.WithOptions(zap.AddCallerSkip(1))
}

// L exposes the underlying logger for structured fields.
func L() *zap.Logger {
	return base
}

// Replace swaps the global logger, returning a func that restores the old one.
func Replace(l *zap.Logger) func() {
	prev := base
	set(l)
	return func() { set(prev) }
}

func build(levelStr string) *zap.Logger {
	var level zapcore.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = zap.DebugLevel
	case "warn":
		level = zap.WarnLevel
	case "error":
		level = zap.ErrorLevel
	default:
		level = zap.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.Encoding = "json"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.LevelKey = "log_level"
	config.EncoderConfig.MessageKey = "message"
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.StacktraceKey = ""
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.OutputPaths = []string{"stdout"}

	l, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l.With(zap.String("service_name", "jdaloan"))
}

func Info(format string, args ...interface{}) {
	log.Info(fmt.Sprintf(format, args...))
}

func Debug(format string, args ...interface{}) {
	log.Debug(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	log.Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	log.Error(fmt.Sprintf(format, args...))
}

// Sync flushes buffered entries.
func Sync() {
	_ = base.Sync()
}
