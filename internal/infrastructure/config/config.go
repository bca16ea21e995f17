package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ErrInvalid is returned by Validate
var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Breaker   BreakerConfig
	Chaos     ChaosConfig
	SLO       SLOConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Tracing   TracingConfig
	GRPC      GRPCConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"3000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	Environment     string        `envconfig:"ENV" default:"development"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// StoreConfig selects and configures the downstream data store.
type StoreConfig struct {
	Driver        string `envconfig:"STORE_DRIVER" default:"redis"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPoolSize int    `envconfig:"REDIS_POOL_SIZE" default:"20"`
	// BadgerPath empty means an in-memory database
	BadgerPath string `envconfig:"BADGER_PATH" default:""`
}

// BreakerConfig holds circuit breaker configuration for the data store.
type BreakerConfig struct {
	FailureThreshold         uint32        `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"5"`
	ResetTimeout             time.Duration `envconfig:"BREAKER_RESET_TIMEOUT" default:"60s"`
	HalfOpenSuccessThreshold uint32        `envconfig:"BREAKER_HALF_OPEN_SUCCESSES" default:"2"`
	CallTimeout              time.Duration `envconfig:"BREAKER_CALL_TIMEOUT" default:"0s"`
}

// ChaosConfig holds chaos gate configuration.
type ChaosConfig struct {
	ExemptPaths []string `envconfig:"CHAOS_EXEMPT_PATHS" default:"/health,/ready,/metrics,/chaos,/api/chaos,/events"`
}

// SLOConfig holds SLI calculation configuration.
type SLOConfig struct {
	Calculator     string        `envconfig:"SLI_CALCULATOR" default:"static"`
	Window         time.Duration `envconfig:"SLI_WINDOW" default:"5m"`
	MaxSamples     int           `envconfig:"SLI_MAX_SAMPLES" default:"10000"`
	ObjectivesFile string        `envconfig:"SLO_OBJECTIVES_FILE" default:""`
	Watch          bool          `envconfig:"SLO_WATCH" default:"false"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration for /api.
type RateLimitConfig struct {
	Max     int           `envconfig:"RATE_LIMIT_MAX" default:"100"`
	Window  time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"15m"`
	Enabled bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// TracingConfig holds OpenTelemetry configuration.
type TracingConfig struct {
	Enabled     bool   `envconfig:"TRACING_ENABLED" default:"true"`
	Stdout      bool   `envconfig:"TRACING_STDOUT" default:"false"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"ironclad-sre-demo"`
}

// GRPCConfig holds the gRPC health server configuration.
type GRPCConfig struct {
	HealthEnabled bool   `envconfig:"GRPC_HEALTH_ENABLED" default:"false"`
	HealthPort    string `envconfig:"GRPC_HEALTH_PORT" default:"50051"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "3000",
			Host:            "0.0.0.0",
			Environment:     "development",
			ShutdownTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Driver:        "redis",
			RedisAddr:     "localhost:6379",
			RedisPoolSize: 20,
		},
		Breaker: BreakerConfig{
			FailureThreshold:         5,
			ResetTimeout:             60 * time.Second,
			HalfOpenSuccessThreshold: 2,
		},
		Chaos: ChaosConfig{
			ExemptPaths: []string{"/health", "/ready", "/metrics", "/chaos", "/api/chaos", "/events"},
		},
		SLO: SLOConfig{
			Calculator: "static",
			Window:     5 * time.Minute,
			MaxSamples: 10000,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			Max:     100,
			Window:  15 * time.Minute,
			Enabled: true,
		},
		Tracing: TracingConfig{
			Enabled:     true,
			ServiceName: "ironclad-sre-demo",
		},
		GRPC: GRPCConfig{
			HealthPort: "50051",
		},
	}
}

// Validate checks values envconfig cannot check by type alone.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "redis", "badger":
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalid, c.Store.Driver)
	}

	switch c.SLO.Calculator {
	case "static", "window":
	default:
		return fmt.Errorf("%w: unknown SLI calculator %q", ErrInvalid, c.SLO.Calculator)
	}

	if c.Breaker.FailureThreshold == 0 || c.Breaker.HalfOpenSuccessThreshold == 0 {
		return fmt.Errorf("%w: breaker thresholds must be positive", ErrInvalid)
	}
	if c.Breaker.ResetTimeout <= 0 {
		return fmt.Errorf("%w: breaker reset timeout must be positive", ErrInvalid)
	}
	if c.Breaker.CallTimeout < 0 {
		return fmt.Errorf("%w: breaker call timeout must not be negative", ErrInvalid)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("%w: rate limit needs a positive max and window", ErrInvalid)
	}
	return nil
}

// IsProduction reports whether the server runs in production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production" || c.Server.Environment == "prod"
}
