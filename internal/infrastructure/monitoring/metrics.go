package monitoring

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/efritz/glock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/resilience"
)

// DurationBuckets are the request duration histogram buckets in seconds
var DurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5}

// Options configures a Metrics instance
type Options struct {
	// Registry defaults to a fresh registry
	Registry *prometheus.Registry
	// Calculator defaults to StaticSLIs with DefaultStaticSLIs
	Calculator SLICalculator
	// Window receives every finished request. Defaults to a five minute window.
	Window *Window
	Clock  glock.Clock
}

// PoolStats describes a connection pool
type PoolStats struct {
	Active  uint32
	Idle    uint32
	Waiting uint32
}

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  prometheus.Gauge
	ErrorRate       *prometheus.GaugeVec
	ErrorRatio      *prometheus.GaugeVec

	// SLI metrics
	SLIAvailability      prometheus.Gauge
	SLILatencyP99        prometheus.Gauge
	ErrorBudgetRemaining prometheus.Gauge

	// Dependency metrics
	BreakerTransitions *prometheus.CounterVec
	ChaosInjections    *prometheus.CounterVec
	StoreOperations    *prometheus.HistogramVec
	PoolSize           *prometheus.GaugeVec

	registry   *prometheus.Registry
	calculator SLICalculator
	window     *Window
	clock      glock.Clock
	startTime  time.Time

	mu    sync.Mutex
	pools []func() PoolStats
}

// Token tracks one in-flight request between RecordStart and RecordFinish
type Token struct {
	route    string
	method   string
	finished atomic.Bool
}

// Route returns the route label of the request
func (t *Token) Route() string {
	return t.route
}

// NewMetrics creates a new metrics collector on its own registry
func NewMetrics(opts Options) *Metrics {
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Clock == nil {
		opts.Clock = glock.NewRealClock()
	}
	if opts.Window == nil {
		opts.Window = NewWindow(opts.Clock, 5*time.Minute, 0)
	}
	if opts.Calculator == nil {
		opts.Calculator = StaticSLIs{Values: DefaultStaticSLIs}
	}

	factory := promauto.With(opts.Registry)
	labels := []string{"method", "route", "status_class"}

	m := &Metrics{
		registry:   opts.Registry,
		calculator: opts.Calculator,
		window:     opts.Window,
		clock:      opts.Clock,
		startTime:  opts.Clock.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			labels,
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: DurationBuckets,
			},
			labels,
		),
		ActiveRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_connections",
				Help: "Number of active connections",
			},
		),
		ErrorRate: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "error_rate",
				Help: "Count of 5xx responses per endpoint since start",
			},
			[]string{"endpoint"},
		),
		ErrorRatio: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "http_error_ratio",
				Help: "Share of 5xx responses per endpoint over the SLI window",
			},
			[]string{"endpoint"},
		),

		// SLI metrics
		SLIAvailability: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sli_availability",
				Help: "Service Level Indicator for availability",
			},
		),
		SLILatencyP99: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sli_latency_p99",
				Help: "Service Level Indicator for latency (p99)",
			},
		),
		ErrorBudgetRemaining: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "error_budget_remaining_percentage",
				Help: "Remaining error budget as percentage",
			},
		),

		// Dependency metrics
		BreakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_breaker_transitions_total",
				Help: "Circuit breaker state transitions",
			},
			[]string{"breaker", "from", "to"},
		),
		ChaosInjections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chaos_injections_total",
				Help: "Faults injected by the chaos controller",
			},
			[]string{"type", "route"},
		),
		StoreOperations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datastore_operation_duration_seconds",
				Help:    "Data store call duration in seconds",
				Buckets: DurationBuckets,
			},
			[]string{"operation", "outcome"},
		),
		PoolSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "db_connection_pool_size",
				Help: "Database connection pool metrics",
			},
			[]string{"state"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "backend_uptime_seconds",
			Help: "Backend uptime in seconds",
		},
		func() float64 {
			return m.clock.Now().Sub(m.startTime).Seconds()
		},
	)

	registerIgnoringDuplicates(opts.Registry, collectors.NewGoCollector())
	registerIgnoringDuplicates(opts.Registry, collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

func registerIgnoringDuplicates(reg prometheus.Registerer, c prometheus.Collector) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			panic(err)
		}
	}
}

// Registry returns the registry backing these metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Window returns the sliding window of finished requests
func (m *Metrics) Window() *Window {
	return m.window
}

// Calculator returns the active SLI calculator
func (m *Metrics) Calculator() SLICalculator {
	return m.calculator
}

// RecordStart marks a request as in flight
func (m *Metrics) RecordStart(route, method string) *Token {
	m.ActiveRequests.Inc()
	return &Token{route: route, method: method}
}

// RecordFinish records the outcome of a request. Only the first call for a
// token has any effect.
func (m *Metrics) RecordFinish(token *Token, statusCode int, duration time.Duration) {
	if token == nil || !token.finished.CompareAndSwap(false, true) {
		return
	}

	m.ActiveRequests.Dec()

	class := StatusClass(statusCode)
	m.RequestsTotal.WithLabelValues(token.method, token.route, class).Inc()
	m.RequestDuration.WithLabelValues(token.method, token.route, class).Observe(duration.Seconds())

	if statusCode >= 500 {
		m.ErrorRate.WithLabelValues(token.route).Inc()
	}

	m.window.Add(token.route, statusCode, duration)
}

// StatusClass maps a status code onto its class label, e.g. 503 -> "5xx"
func StatusClass(statusCode int) string {
	if statusCode < 100 || statusCode > 599 {
		return "unknown"
	}
	return strconv.Itoa(statusCode/100) + "xx"
}

// BreakerStateChanged counts a breaker transition
func (m *Metrics) BreakerStateChanged(name string, from, to resilience.State) {
	m.BreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
}

// RegisterBreaker exports state and rejection totals of b
func (m *Metrics) RegisterBreaker(b *resilience.Breaker) {
	constLabels := prometheus.Labels{"breaker": b.Name()}
	factory := promauto.With(m.registry)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "circuit_breaker_state",
			Help:        "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			ConstLabels: constLabels,
		},
		func() float64 { return float64(b.State()) },
	)
	factory.NewCounterFunc(
		prometheus.CounterOpts{
			Name:        "circuit_breaker_rejections_total",
			Help:        "Calls refused without being attempted",
			ConstLabels: constLabels,
		},
		func() float64 { return float64(b.Stats().TotalRejections) },
	)
}

// ChaosInjected counts an injected fault of kind ("latency" or "error") on route
func (m *Metrics) ChaosInjected(kind, route string) {
	m.ChaosInjections.WithLabelValues(kind, route).Inc()
}

// ObserveStoreOperation records the duration of a data store call
func (m *Metrics) ObserveStoreOperation(operation, outcome string, duration time.Duration) {
	m.StoreOperations.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

// RegisterPool adds a connection pool whose stats are refreshed on every scrape
func (m *Metrics) RegisterPool(stats func() PoolStats) {
	m.mu.Lock()
	m.pools = append(m.pools, stats)
	m.mu.Unlock()
}

// UpdateSLIs refreshes the derived gauges. It is called before every scrape.
func (m *Metrics) UpdateSLIs() error {
	slis, err := m.calculator.Calculate()
	if err != nil {
		return fmt.Errorf("calculate SLIs: %w", err)
	}

	m.SLIAvailability.Set(slis.Availability)
	m.SLILatencyP99.Set(slis.LatencyP99)
	m.ErrorBudgetRemaining.Set(slis.ErrorBudgetRemaining)

	summary := m.window.Summarize()
	m.ErrorRatio.Reset()
	for route, rs := range summary.Routes {
		m.ErrorRatio.WithLabelValues(route).Set(rs.ErrorRatio())
	}

	m.mu.Lock()
	pools := append([]func() PoolStats(nil), m.pools...)
	m.mu.Unlock()

	var total PoolStats
	for _, stats := range pools {
		s := stats()
		total.Active += s.Active
		total.Idle += s.Idle
		total.Waiting += s.Waiting
	}
	if len(pools) > 0 {
		m.PoolSize.WithLabelValues("active").Set(float64(total.Active))
		m.PoolSize.WithLabelValues("idle").Set(float64(total.Idle))
		m.PoolSize.WithLabelValues("waiting").Set(float64(total.Waiting))
	}

	return nil
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
		Registry:      m.registry,
	})
}

// Snapshot renders the registry in the Prometheus text format
func (m *Metrics) Snapshot() (string, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return "", fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return "", fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return buf.String(), nil
}
