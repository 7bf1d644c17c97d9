package observability

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/prasathkrishna17/Botique-maid/internal/platform/requestctx"
)

const defaultLogLevel = "info"

// LoggerOption customises NewLogger.
type LoggerOption func(*loggerConfig)

type loggerConfig struct {
	level       string
	environment string
	version     string
	development bool
}

// WithLogLevel sets the minimum level. Invalid values fall back to info.
func WithLogLevel(level string) LoggerOption {
	return func(cfg *loggerConfig) {
		cfg.level = strings.ToLower(strings.TrimSpace(level))
	}
}

// WithLogEnvironment tags every entry with the deployment environment.
func WithLogEnvironment(env string) LoggerOption {
	return func(cfg *loggerConfig) {
		cfg.environment = strings.TrimSpace(env)
	}
}

// WithLogVersion tags every entry with the build version.
func WithLogVersion(version string) LoggerOption {
	return func(cfg *loggerConfig) {
		cfg.version = strings.TrimSpace(version)
	}
}

// WithDevelopmentEncoding switches to console output with stack traces on warnings.
func WithDevelopmentEncoding() LoggerOption {
	return func(cfg *loggerConfig) {
		cfg.development = true
	}
}

// NewLogger constructs a zap logger emitting Cloud Logging compatible JSON.
func NewLogger(opts ...LoggerOption) (*zap.Logger, error) {
	cfg := loggerConfig{level: defaultLogLevel}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.level)); err != nil {
		_ = level.UnmarshalText([]byte(defaultLogLevel))
	}

	encoderCfg := zapcore.EncoderConfig{
		MessageKey: "message",
		TimeKey:    "timestamp",
		LevelKey:   "severity",
		EncodeTime: zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(strings.ToUpper(level.String()))
		},
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
	}

	zcfg := zap.Config{
		Level:             level,
		Encoding:          "json",
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	if cfg.development {
		zcfg.Encoding = "console"
		zcfg.Development = true
		zcfg.DisableStacktrace = false
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}

	var fields []zap.Field
	if cfg.environment != "" {
		fields = append(fields, zap.String("env", cfg.environment))
	}
	if cfg.version != "" {
		fields = append(fields, zap.String("version", cfg.version))
	}
	return logger.With(fields...), nil
}

// WithLogger injects the logger into the provided context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// FromContext retrieves the logger from context, defaulting to a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

// EventLogger adapts zap to the func(ctx, event, fields) hook that services accept. The
// request-scoped logger wins over base when one is on the context.
func EventLogger(base *zap.Logger) func(context.Context, string, map[string]any) {
	if base == nil {
		base = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if logger == requestctx.NoopLogger() {
			logger = base
		}
		zfields := make([]zap.Field, 0, len(fields)+1)
		zfields = append(zfields, zap.String("event", event))
		for key, value := range fields {
			if err, ok := value.(error); ok {
				zfields = append(zfields, zap.NamedError(key, err))
				continue
			}
			zfields = append(zfields, zap.Any(key, value))
		}
		if _, failed := fields["error"]; failed {
			logger.Warn(event, zfields...)
			return
		}
		logger.Info(event, zfields...)
	}
}

// WithRequestFields augments the logger with request-scoped fields.
func WithRequestFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(fields...)
}
