package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RequestIDKey is the field name carrying the request correlation ID
const RequestIDKey = "requestId"

// Logger wraps zap.Logger with convenience methods.
type Logger struct {
	*zap.Logger
}

// Config defines logger configuration.
type Config struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	// OutputPaths defaults to stdout
	OutputPaths []string

	// Attached to every entry
	Service     string
	Version     string
	Environment string
}

// New builds a logger. Production writes JSON with the field names log
// shippers expect; development writes colored console lines with stack
// traces from warn up.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.EncoderConfig = productionEncoder()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.Sampling = nil
	if len(cfg.OutputPaths) > 0 {
		zapCfg.OutputPaths = cfg.OutputPaths
	}

	fields := make(map[string]interface{}, 3)
	for key, value := range map[string]string{
		"service":     cfg.Service,
		"version":     cfg.Version,
		"environment": cfg.Environment,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	zapCfg.InitialFields = fields

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: logger}, nil
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// RequestID is the field tagging an entry with its request
func RequestID(id string) zap.Field {
	return zap.String(RequestIDKey, id)
}

// WithRequestID returns a child of log tagged with a request correlation ID
func WithRequestID(log *zap.Logger, id string) *zap.Logger {
	return log.With(RequestID(id))
}

func productionEncoder() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.StacktraceKey = "stack"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder
	return enc
}
