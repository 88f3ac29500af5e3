package observability

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type correlationIDKey struct{}

func NewLogger(level string) (*zap.Logger, error) {
	parsedLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsedLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

// LogFile configures an optional rotated log file written next to stdout.
type LogFile struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewLoggerWithFile builds the production JSON logger and tees it into a
// lumberjack-rotated file when file.Path is set.
func NewLoggerWithFile(level string, file LogFile) (*zap.Logger, error) {
	if strings.TrimSpace(file.Path) == "" {
		return NewLogger(level)
	}

	parsedLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)

	rotator := &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    max(file.MaxSizeMB, 1),
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
		Compress:   true,
	}

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), parsedLevel),
		zapcore.NewCore(encoder, zapcore.AddSync(rotator), parsedLevel),
	)

	return zap.New(core, zap.AddCaller()), nil
}

func parseLevel(level string) (zapcore.Level, error) {
	var parsed zapcore.Level
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		normalized = "info"
	}

	if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return parsed, nil
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, correlationIDKey{}, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}

	correlationID, ok := ctx.Value(correlationIDKey{}).(string)
	if !ok || correlationID == "" {
		return "", false
	}

	return correlationID, true
}

func WithContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}

	correlationID, ok := CorrelationIDFromContext(ctx)
	if !ok {
		return logger
	}

	return logger.With(zap.String("correlationId", correlationID))
}
