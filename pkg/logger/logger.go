package logger

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration
type Config struct {
	// Level is a zap level name or an environment name (development, production)
	Level       string
	ServiceName string
	Development bool
	// OutputPaths defaults to stdout
	OutputPaths []string
}

// Logger wraps a zap logger with context-aware helpers
type Logger struct {
	zl *zap.Logger
}

var (
	global *Logger
	mu     sync.RWMutex
)

// Init builds the global logger
func Init(cfg *Config) error {
	if cfg == nil {
		cfg = &Config{Level: "info"}
	}

	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}

	zl, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	if cfg.ServiceName != "" {
		zl = zl.With(zap.String("service", cfg.ServiceName))
	}

	mu.Lock()
	global = &Logger{zl: zl}
	mu.Unlock()
	return nil
}

// Get returns the global logger. Before Init it returns a no-op logger.
func Get() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		return &Logger{zl: zap.NewNop()}
	}
	return global
}

// New wraps an existing zap logger, mainly for tests
func New(zl *zap.Logger) *Logger {
	if zl == nil {
		zl = zap.NewNop()
	}
	return &Logger{zl: zl}
}

// Sync flushes the global logger
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if global != nil {
		_ = global.zl.Sync()
	}
}

// With returns a child logger carrying fields
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zl: l.zl.With(fields...)}
}

// Zap exposes the underlying zap logger
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zl.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zl.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zl.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zl.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...zap.Field) { l.zl.Fatal(msg, fields...) }

// InfoContext logs with the trace and span IDs of ctx attached
func (l *Logger) InfoContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.zl.Info(msg, append(fields, traceFields(ctx)...)...)
}

// WarnContext logs with the trace and span IDs of ctx attached
func (l *Logger) WarnContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.zl.Warn(msg, append(fields, traceFields(ctx)...)...)
}

// ErrorContext logs with the trace and span IDs of ctx attached
func (l *Logger) ErrorContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.zl.Error(msg, append(fields, traceFields(ctx)...)...)
}

// Package level shortcuts on the global logger

func Info(msg string, fields ...zap.Field)  { Get().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Get().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Get().Error(msg, fields...) }

func traceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug", "development", "dev", "local":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
