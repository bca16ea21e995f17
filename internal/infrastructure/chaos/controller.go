package chaos

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/efritz/glock"
	"go.uber.org/zap"
)

// MaxLatencyMs is the largest latency that can be injected
const MaxLatencyMs = 10000

// ErrValidation is returned for out-of-range control input. State is left unchanged.
var ErrValidation = errors.New("invalid chaos configuration")

// Config is the active fault injection configuration
type Config struct {
	Enabled   bool    `json:"enabled"`
	LatencyMs int     `json:"latencyMs"`
	ErrorRate float64 `json:"errorRate"`
}

// Stats tracks chaos injection counts
type Stats struct {
	TotalRequests     int64     `json:"totalRequests"`
	DelayedRequests   int64     `json:"delayedRequests"`
	FailedRequests    int64     `json:"failedRequests"`
	LastInjectionTime time.Time `json:"lastInjectionTime"`
	LastRecoveryTime  time.Time `json:"lastRecoveryTime"`
}

// Observer is notified of every injected fault
type Observer interface {
	ChaosInjected(kind, route string)
}

// Fault kinds reported to the Observer
const (
	FaultLatency = "latency"
	FaultError   = "error"
)

// Options configures a Controller
type Options struct {
	Clock glock.Clock
	// Random returns a uniform value in [0, 1)
	Random   func() float64
	Logger   *zap.Logger
	Observer Observer
	// OnChange receives the new configuration after every control operation
	OnChange func(Config)
}

// Verdict is the outcome of the gate for one request
type Verdict struct {
	// Inject is set when the request must be failed with the configuration below
	Inject bool
	Config Config
	Delay  time.Duration
}

// Controller holds the chaos configuration and gates inbound requests
type Controller struct {
	clock    glock.Clock
	random   func() float64
	logger   *zap.Logger
	observer Observer
	onChange func(Config)

	mu     sync.RWMutex
	config Config
	stats  Stats
}

// New creates a disabled controller
func New(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = glock.NewRealClock()
	}
	if opts.Random == nil {
		opts.Random = rand.Float64
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Controller{
		clock:    opts.Clock,
		random:   opts.Random,
		logger:   opts.Logger,
		observer: opts.Observer,
		onChange: opts.OnChange,
	}
}

// Status returns a copy of the current configuration
func (c *Controller) Status() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// Stats returns a copy of the injection counters
func (c *Controller) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Enable turns injection on with the current latency and error rate
func (c *Controller) Enable() Config {
	cfg := c.update(func(cfg *Config) {
		cfg.Enabled = true
	})
	c.logger.Warn("Chaos engineering enabled",
		zap.Int("latency_ms", cfg.LatencyMs),
		zap.Float64("error_rate", cfg.ErrorRate))
	return cfg
}

// Disable turns injection off and zeroes latency and error rate
func (c *Controller) Disable() Config {
	cfg := c.update(func(cfg *Config) {
		*cfg = Config{}
	})
	c.logger.Info("Chaos engineering disabled")
	return cfg
}

// SetLatency sets the injected latency and enables injection
func (c *Controller) SetLatency(ms int) (Config, error) {
	if ms < 0 || ms > MaxLatencyMs {
		return c.Status(), fmt.Errorf("%w: latency %dms outside 0-%d", ErrValidation, ms, MaxLatencyMs)
	}

	cfg := c.update(func(cfg *Config) {
		cfg.LatencyMs = ms
		cfg.Enabled = true
	})
	c.logger.Warn("Chaos: Latency injection set", zap.Int("latency_ms", ms))
	return cfg, nil
}

// SetErrorRate sets the probability of failing a request and enables injection
func (c *Controller) SetErrorRate(rate float64) (Config, error) {
	if math.IsNaN(rate) || rate < 0 || rate > 1 {
		return c.Status(), fmt.Errorf("%w: error rate %v outside 0-1", ErrValidation, rate)
	}

	cfg := c.update(func(cfg *Config) {
		cfg.ErrorRate = rate
		cfg.Enabled = true
	})
	c.logger.Warn("Chaos: Error rate set", zap.Float64("error_rate", rate))
	return cfg, nil
}

func (c *Controller) update(fn func(cfg *Config)) Config {
	c.mu.Lock()
	wasEnabled := c.config.Enabled
	fn(&c.config)
	now := c.clock.Now()
	if c.config.Enabled {
		c.stats.LastInjectionTime = now
	} else if wasEnabled {
		c.stats.LastRecoveryTime = now
	}
	cfg := c.config
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(cfg)
	}
	return cfg
}

// Gate applies the configuration to one request. It waits for the injected
// latency without blocking other requests, then decides whether to fail the
// request. The configuration is read once on entry. A context error is
// returned when the caller goes away during the delay.
func (c *Controller) Gate(ctx context.Context, route string) (Verdict, error) {
	cfg := c.Status()
	if !cfg.Enabled {
		return Verdict{Config: cfg}, nil
	}

	c.mu.Lock()
	c.stats.TotalRequests++
	c.mu.Unlock()

	verdict := Verdict{Config: cfg}

	if cfg.LatencyMs > 0 {
		delay := time.Duration(cfg.LatencyMs) * time.Millisecond
		c.record(FaultLatency, route)

		select {
		case <-c.clock.After(delay):
			verdict.Delay = delay
		case <-ctx.Done():
			return verdict, ctx.Err()
		}
	}

	if c.random() < cfg.ErrorRate {
		c.record(FaultError, route)
		c.logger.Warn("Chaos: Injecting error",
			zap.String("route", route),
			zap.Float64("error_rate", cfg.ErrorRate))
		verdict.Inject = true
	}

	return verdict, nil
}

func (c *Controller) record(kind, route string) {
	c.mu.Lock()
	switch kind {
	case FaultLatency:
		c.stats.DelayedRequests++
	case FaultError:
		c.stats.FailedRequests++
	}
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.ChaosInjected(kind, route)
	}
}
