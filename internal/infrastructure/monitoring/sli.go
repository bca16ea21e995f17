package monitoring

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/efritz/glock"
	"gonum.org/v1/gonum/stat"
)

// SLIs are the derived service level indicators published on every scrape
type SLIs struct {
	Availability         float64 `json:"availability"`
	LatencyP99           float64 `json:"latencyP99Seconds"`
	ErrorBudgetRemaining float64 `json:"errorBudgetRemainingPercentage"`
	// LatencyCompliance is the fraction of requests under the latency threshold
	LatencyCompliance float64 `json:"latencyCompliance"`
}

// SLICalculator derives SLIs. Implementations must be safe for concurrent use.
type SLICalculator interface {
	Calculate() (SLIs, error)
}

// DefaultStaticSLIs are the agreed targets published by StaticSLIs
var DefaultStaticSLIs = SLIs{
	Availability:         0.9995,
	LatencyP99:           0.150,
	ErrorBudgetRemaining: 75,
	LatencyCompliance:    0.97,
}

// StaticSLIs publishes fixed values
type StaticSLIs struct {
	Values SLIs
}

// Calculate returns the configured values
func (s StaticSLIs) Calculate() (SLIs, error) {
	return s.Values, nil
}

// WindowedSLIs computes SLIs from the recent request window
type WindowedSLIs struct {
	window     *Window
	objectives *ObjectiveSet
}

// NewWindowedSLIs creates a calculator over window, measured against objectives
func NewWindowedSLIs(window *Window, objectives *ObjectiveSet) *WindowedSLIs {
	return &WindowedSLIs{window: window, objectives: objectives}
}

// Calculate computes availability, p99 latency and remaining error budget
func (w *WindowedSLIs) Calculate() (SLIs, error) {
	summary := w.window.Summarize()
	objectives := w.objectives.Get()

	return SLIs{
		Availability:         summary.Availability(),
		LatencyP99:           summary.Quantile(0.99),
		ErrorBudgetRemaining: BudgetRemaining(summary.Availability(), objectives.Availability.Target),
		LatencyCompliance:    summary.FractionWithin(objectives.LatencyThreshold()),
	}, nil
}

// BudgetRemaining returns the percentage of the error budget left for the
// given availability against target, clamped to [0, 100].
func BudgetRemaining(availability, target float64) float64 {
	allowed := 1 - target
	if allowed <= 0 {
		if availability >= 1 {
			return 100
		}
		return 0
	}

	remaining := 100 * (1 - (1-availability)/allowed)
	return math.Max(0, math.Min(100, remaining))
}

// Sample is a single finished request
type Sample struct {
	At       time.Time
	Route    string
	Status   int
	Duration time.Duration
}

// Window keeps the finished requests of the last span, up to max samples
type Window struct {
	clock glock.Clock
	span  time.Duration
	max   int

	mu      sync.Mutex
	samples []Sample
}

// NewWindow creates a sliding window
func NewWindow(clock glock.Clock, span time.Duration, max int) *Window {
	if clock == nil {
		clock = glock.NewRealClock()
	}
	if span <= 0 {
		span = 5 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}

	return &Window{
		clock: clock,
		span:  span,
		max:   max,
	}
}

// Add records a sample stamped with the current time
func (w *Window) Add(route string, status int, duration time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, Sample{
		At:       w.clock.Now(),
		Route:    route,
		Status:   status,
		Duration: duration,
	})
	if len(w.samples) > w.max {
		w.samples = w.samples[len(w.samples)-w.max:]
	}
}

// Len returns the number of live samples
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune()
	return len(w.samples)
}

// Summarize aggregates the live samples
func (w *Window) Summarize() Summary {
	w.mu.Lock()
	w.prune()
	samples := make([]Sample, len(w.samples))
	copy(samples, w.samples)
	w.mu.Unlock()

	summary := Summary{
		Routes: make(map[string]RouteSummary),
	}

	summary.durations = make([]float64, 0, len(samples))
	for _, s := range samples {
		route := summary.Routes[s.Route]
		route.Total++
		summary.Total++
		if s.Status >= 500 {
			route.Errors++
			summary.Errors++
		}
		summary.Routes[s.Route] = route
		summary.durations = append(summary.durations, s.Duration.Seconds())
	}
	sort.Float64s(summary.durations)

	return summary
}

func (w *Window) prune() {
	cutoff := w.clock.Now().Add(-w.span)

	i := 0
	for i < len(w.samples) && w.samples[i].At.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.samples = append(w.samples[:0], w.samples[i:]...)
	}
}

// RouteSummary counts requests for one route
type RouteSummary struct {
	Total  int
	Errors int
}

// ErrorRatio is the share of 5xx responses, zero when idle
func (r RouteSummary) ErrorRatio() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Errors) / float64(r.Total)
}

// Summary aggregates a window
type Summary struct {
	Total  int
	Errors int
	Routes map[string]RouteSummary

	durations []float64
}

// Availability is the share of non-5xx responses. An idle window is fully available.
func (s Summary) Availability() float64 {
	if s.Total == 0 {
		return 1
	}
	return float64(s.Total-s.Errors) / float64(s.Total)
}

// Quantile returns the p-quantile of request durations in seconds
func (s Summary) Quantile(p float64) float64 {
	if len(s.durations) == 0 {
		return 0
	}
	return stat.Quantile(p, stat.Empirical, s.durations, nil)
}

// FractionWithin returns the share of requests that finished within threshold
func (s Summary) FractionWithin(threshold time.Duration) float64 {
	if len(s.durations) == 0 {
		return 1
	}
	limit := threshold.Seconds()
	n := sort.Search(len(s.durations), func(i int) bool { return s.durations[i] > limit })
	return float64(n) / float64(len(s.durations))
}
