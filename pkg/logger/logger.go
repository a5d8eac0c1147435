package logger

import (
	"context"
	"time"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/tenant"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. Initialize must run before first use.
var Log *zap.Logger

type contextKey int

const (
	loggerKey contextKey = iota
)

// Initialize builds a JSON logger at the given level; unknown levels fall back to info.
func Initialize(level string) error {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	utcTime := func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}

	cfg := zap.Config{
		Level:    zap.NewAtomicLevelAt(zapLevel),
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     utcTime,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	built, err := cfg.Build(zap.AddCaller(), zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	Log = built.Named("integration-hub")
	return nil
}

// WithLogger attaches a scoped logger to ctx.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the context logger (or the global one, or a no-op
// logger before Initialize) with request_id attached when the context carries one.
func FromContext(ctx context.Context) *zap.Logger {
	base := Log
	if base == nil {
		base = zap.NewNop()
	}
	if ctx == nil {
		return base
	}

	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		base = l
	}

	if requestID, err := tenant.FromRequestIDContext(ctx); err == nil {
		return base.With(zap.String("request_id", requestID))
	}
	return base
}

// FromContextOr prefers the context logger, then fallback, then Log.
func FromContextOr(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return Log
}

func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
