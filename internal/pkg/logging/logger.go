package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// SystemTraceID is used when no distributed trace context is available.
	SystemTraceID = "system"
	// SystemSpanID is used when no distributed span context is available.
	SystemSpanID = "system"
)

// Options controls how the base logger is built.
type Options struct {
	Service string
	Env     string
	// Level is a zap level name ("debug", "info", ...). Empty means info.
	Level string
	// File duplicates output to the given path when set.
	File string
}

// NewLogger creates a production-ready zap logger that emits JSON logs to stdout.
// It enriches each log entry with the provided service and environment identifiers.
func NewLogger(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stdout"}

	if opts.Level != "" {
		level, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	if opts.File != "" {
		if err := ensureLogFile(opts.File); err != nil {
			return nil, fmt.Errorf("prepare log file: %w", err)
		}
		cfg.OutputPaths = append(cfg.OutputPaths, opts.File)
		cfg.ErrorOutputPaths = append(cfg.ErrorOutputPaths, opts.File)
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	cfg.InitialFields = map[string]any{
		"service": opts.Service,
		"env":     opts.Env,
	}

	return cfg.Build()
}

// MustNewLogger is like NewLogger but panics if the logger cannot be created.
func MustNewLogger(opts Options) *zap.Logger {
	logger, err := NewLogger(opts)
	if err != nil {
		panic(err)
	}
	return logger
}

// WithTrace returns a logger enriched with trace and span identifiers.
// Unknown values are normalised to the literal "unknown" to ensure required fields exist.
func WithTrace(logger *zap.Logger, traceID, spanID string) *zap.Logger {
	if logger == nil {
		logger = zap.L()
	}
	if traceID == "" {
		traceID = "unknown"
	}
	if spanID == "" {
		spanID = "unknown"
	}
	return logger.With(
		zap.String("trace_id", traceID),
		zap.String("span_id", spanID),
	)
}

func ensureLogFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
