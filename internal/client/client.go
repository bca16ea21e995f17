package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/chaos"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/monitoring"
)

// DefaultAddr is the address of a locally running server
const DefaultAddr = "http://localhost:3000"

// Options configures a Client
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	RetryWait  time.Duration
	Logger     *zap.Logger
}

// Client talks to the admin and probe endpoints of a running server
type Client struct {
	resty *resty.Client
}

// APIError is a non-2xx answer from the server
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
	// RetryAfter is set when the server sent a Retry-After header
	RetryAfter time.Duration `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// ChaosUpdate is the answer to a chaos control call
type ChaosUpdate struct {
	Message string        `json:"message"`
	Config  *chaos.Config `json:"config,omitempty"`
}

// ChaosStats is the answer of the stats endpoint
type ChaosStats struct {
	Config chaos.Config `json:"config"`
	Stats  chaos.Stats  `json:"stats"`
}

// Health is the answer of the health endpoint
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Checks    struct {
		Database       string `json:"database"`
		CircuitBreaker string `json:"circuitBreaker"`
	} `json:"checks"`
}

// SLO is one objective with its current value
type SLO struct {
	Name        string  `json:"name"`
	Target      float64 `json:"target"`
	Current     float64 `json:"current"`
	Description string  `json:"description"`
}

// SLOReport is the answer of the SLO endpoint
type SLOReport struct {
	SLOs        []SLO                  `json:"slos"`
	ErrorBudget monitoring.ErrorBudget `json:"errorBudget"`
	SLI         monitoring.SLIs        `json:"sli"`
	PeriodDays  int                    `json:"periodDays"`
}

// New creates a client for the server at addr. Connection failures are
// retried with backoff; HTTP answers never are.
func New(addr string, opts Options) *Client {
	if addr == "" {
		addr = DefaultAddr
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 200 * time.Millisecond
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.MaxRetries
	retryClient.RetryWaitMin = opts.RetryWait
	retryClient.RetryWaitMax = 10 * opts.RetryWait
	retryClient.CheckRetry = retryTransportErrors
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.Logger != nil {
		retryClient.Logger = retryLogger{opts.Logger.Sugar()}
	} else {
		retryClient.Logger = nil
	}

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(addr).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "chaosctl/1.0").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	return &Client{resty: restyClient}
}

func retryTransportErrors(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err == nil {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Status returns the active chaos configuration
func (c *Client) Status(ctx context.Context) (chaos.Config, error) {
	var cfg chaos.Config
	err := c.do(ctx, http.MethodGet, "/chaos/status", &cfg)
	return cfg, err
}

// Stats returns the chaos configuration and injection counters
func (c *Client) Stats(ctx context.Context) (ChaosStats, error) {
	var stats ChaosStats
	err := c.do(ctx, http.MethodGet, "/chaos/stats", &stats)
	return stats, err
}

// Enable turns fault injection on
func (c *Client) Enable(ctx context.Context) (ChaosUpdate, error) {
	var update ChaosUpdate
	err := c.do(ctx, http.MethodPost, "/chaos/enable", &update)
	return update, err
}

// Disable turns fault injection off
func (c *Client) Disable(ctx context.Context) (ChaosUpdate, error) {
	var update ChaosUpdate
	err := c.do(ctx, http.MethodPost, "/chaos/disable", &update)
	return update, err
}

// SetLatency sets the injected latency in milliseconds
func (c *Client) SetLatency(ctx context.Context, ms int) (ChaosUpdate, error) {
	var update ChaosUpdate
	err := c.do(ctx, http.MethodPost, "/chaos/latency/"+strconv.Itoa(ms), &update)
	return update, err
}

// SetErrorRate sets the probability of an injected failure
func (c *Client) SetErrorRate(ctx context.Context, rate float64) (ChaosUpdate, error) {
	var update ChaosUpdate
	err := c.do(ctx, http.MethodPost, "/chaos/errors/"+strconv.FormatFloat(rate, 'f', -1, 64), &update)
	return update, err
}

// Health returns the health report. An unhealthy server yields both the
// report and an *APIError.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var health Health
	resp, err := c.resty.R().
		SetContext(ctx).
		SetResult(&health).
		SetError(&health).
		Get("/health")
	if err != nil {
		return health, err
	}
	if resp.IsError() {
		return health, &APIError{StatusCode: resp.StatusCode(), Message: health.Status}
	}
	return health, nil
}

// SLOs returns the objectives and error budget
func (c *Client) SLOs(ctx context.Context) (SLOReport, error) {
	var report SLOReport
	err := c.do(ctx, http.MethodGet, "/api/slo", &report)
	return report, err
}

func (c *Client) do(ctx context.Context, method, path string, result interface{}) error {
	apiErr := &APIError{}
	resp, err := c.resty.R().
		SetContext(ctx).
		SetResult(result).
		SetError(apiErr).
		Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr.StatusCode = resp.StatusCode()
		if secs, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return apiErr
	}
	return nil
}

// retryLogger adapts zap to retryablehttp.LeveledLogger
type retryLogger struct {
	sugar *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}
