package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	// Breaker config
	assert.Equal(t, uint32(5), cfg.Breaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Breaker.ResetTimeout)
	assert.Equal(t, uint32(2), cfg.Breaker.HalfOpenSuccessThreshold)
	assert.Zero(t, cfg.Breaker.CallTimeout)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.True(t, cfg.RateLimit.Enabled)

	require.NoError(t, cfg.Validate())
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                        "9000",
		"HOST":                        "127.0.0.1",
		"STORE_DRIVER":                "badger",
		"BADGER_PATH":                 "/tmp/ironclad",
		"BREAKER_FAILURE_THRESHOLD":   "3",
		"BREAKER_RESET_TIMEOUT":       "30s",
		"BREAKER_HALF_OPEN_SUCCESSES": "1",
		"BREAKER_CALL_TIMEOUT":        "2s",
		"CHAOS_EXEMPT_PATHS":          "/health,/metrics",
		"SLI_CALCULATOR":              "window",
		"SLI_WINDOW":                  "1m",
		"LOG_LEVEL":                   "debug",
		"LOG_DEV":                     "true",
		"RATE_LIMIT_MAX":              "500",
		"RATE_LIMIT_ENABLED":          "false",
	}

	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "badger", cfg.Store.Driver)
	assert.Equal(t, "/tmp/ironclad", cfg.Store.BadgerPath)
	assert.Equal(t, uint32(3), cfg.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.ResetTimeout)
	assert.Equal(t, uint32(1), cfg.Breaker.HalfOpenSuccessThreshold)
	assert.Equal(t, 2*time.Second, cfg.Breaker.CallTimeout)
	assert.Equal(t, []string{"/health", "/metrics"}, cfg.Chaos.ExemptPaths)
	assert.Equal(t, "window", cfg.SLO.Calculator)
	assert.Equal(t, time.Minute, cfg.SLO.Window)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.Max)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"unknown calculator", func(c *Config) { c.SLO.Calculator = "magic" }},
		{"zero failure threshold", func(c *Config) { c.Breaker.FailureThreshold = 0 }},
		{"zero reset timeout", func(c *Config) { c.Breaker.ResetTimeout = 0 }},
		{"negative call timeout", func(c *Config) { c.Breaker.CallTimeout = -time.Second }},
		{"empty rate limit", func(c *Config) { c.RateLimit.Max = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")

	_, err := Load()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestInvalidDurationFailsLoad(t *testing.T) {
	t.Setenv("BREAKER_RESET_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)
}
