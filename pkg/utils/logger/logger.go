// Package logger is a process-wide zap logger that enriches every entry with
// the trace, request and caller identity carried by the context.
package logger

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"codearena/pkg/utils/contextkey"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is json or console.
	Format string `yaml:"format"`
	// OutputPath is stdout, stderr or a file that is appended to.
	OutputPath string `yaml:"outputPath"`
	// Service is attached to every entry when set.
	Service string `yaml:"service"`
}

var global atomic.Pointer[zap.Logger]

// Init builds a logger from cfg and installs it.
func Init(cfg Config) error {
	z, err := New(cfg)
	if err != nil {
		return err
	}
	global.Store(z)
	return nil
}

// SetLogger installs z. Nil silences logging, which is the state before Init.
func SetLogger(z *zap.Logger) {
	global.Store(z)
}

// New builds a zap logger. Error entries carry a stack trace.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "", "json":
		ec := zap.NewProductionEncoderConfig()
		ec.TimeKey = "time"
		ec.EncodeTime = zapcore.RFC3339TimeEncoder
		ec.EncodeDuration = zapcore.MillisDurationEncoder
		encoder = zapcore.NewJSONEncoder(ec)
	case "console":
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(ec)
	default:
		return nil, fmt.Errorf("log format %q: want json or console", cfg.Format)
	}

	sink, err := openSink(cfg.OutputPath)
	if err != nil {
		return nil, err
	}

	z := zap.New(zapcore.NewCore(encoder, sink, level),
		zap.AddCaller(),
		zap.AddCallerSkip(2),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if cfg.Service != "" {
		z = z.With(zap.String("service", cfg.Service))
	}
	return z, nil
}

func openSink(path string) (zapcore.WriteSyncer, error) {
	switch path {
	case "", "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return zapcore.AddSync(f), nil
}

// contextFields lists what the HTTP middleware stored on ctx.
func contextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 4)
	for _, k := range []contextkey.Key{contextkey.TraceID, contextkey.RequestID} {
		if v, ok := ctx.Value(k).(string); ok && v != "" {
			fields = append(fields, zap.String(string(k), v))
		}
	}
	if v, ok := ctx.Value(contextkey.UserID).(int64); ok && v > 0 {
		fields = append(fields, zap.Int64(string(contextkey.UserID), v))
	}
	if v, ok := ctx.Value(contextkey.Role).(string); ok && v != "" {
		fields = append(fields, zap.String(string(contextkey.Role), v))
	}
	return fields
}

func log(ctx context.Context, level zapcore.Level, msg string, fields []zap.Field) {
	z := global.Load()
	if z == nil {
		return
	}
	// Check first so disabled levels cost nothing beyond the lookup.
	ce := z.Check(level, msg)
	if ce == nil {
		return
	}
	ce.Write(append(contextFields(ctx), fields...)...)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	log(ctx, zapcore.DebugLevel, msg, fields)
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	log(ctx, zapcore.InfoLevel, msg, fields)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	log(ctx, zapcore.WarnLevel, msg, fields)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	log(ctx, zapcore.ErrorLevel, msg, fields)
}

// Sync flushes buffered entries. Stdout sync errors on some platforms are
// not worth reporting, so callers usually discard the result.
func Sync() error {
	if z := global.Load(); z != nil {
		return z.Sync()
	}
	return nil
}
