package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/efritz/glock"
)

var (
	// ErrCircuitOpen is returned when the breaker refuses a call without invoking it.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrProbeInFlight is returned to callers that lose the race for the single
	// half-open probe slot. It matches ErrCircuitOpen under errors.Is.
	ErrProbeInFlight = fmt.Errorf("%w: probe in flight", ErrCircuitOpen)
	// ErrTimeout is returned when an operation exceeds Settings.Timeout.
	ErrTimeout = errors.New("circuit breaker call timed out")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// Operation is the unit of work guarded by a breaker.
type Operation func(ctx context.Context) (interface{}, error)

// Settings configures the circuit breaker behavior
type Settings struct {
	// FailureThreshold is the number of consecutive failures that opens a closed breaker
	FailureThreshold uint32
	// ResetTimeout is the minimum time spent open before a probe is admitted
	ResetTimeout time.Duration
	// HalfOpenSuccessThreshold is the number of consecutive probe successes that closes the breaker
	HalfOpenSuccessThreshold uint32
	// Timeout bounds a single call. Zero disables it.
	Timeout time.Duration
	// IsFailure decides whether an operation error counts against the breaker.
	// Errors it rejects are treated as successes.
	IsFailure func(err error) bool
	// OnStateChange is called with the breaker lock held and must not call back into the breaker
	OnStateChange func(name string, from State, to State)
	// Clock defaults to the real clock
	Clock glock.Clock
}

// Counts holds the consecutive counters of the current state. Both reset on every transition.
type Counts struct {
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Stats is a point-in-time view of a breaker
type Stats struct {
	Name       string
	State      State
	Counts     Counts
	OpenedAt   time.Time
	Generation uint64

	TotalSuccesses  uint64
	TotalFailures   uint64
	TotalRejections uint64
	TotalTimeouts   uint64
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeNeutral
)

// Breaker implements the circuit breaker pattern
type Breaker struct {
	name     string
	settings Settings
	clock    glock.Clock

	mu            sync.Mutex
	state         State
	counts        Counts
	openedAt      time.Time
	generation    uint64
	probeInFlight bool

	successes  uint64
	failures   uint64
	rejections uint64
	timeouts   uint64
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	if settings.ResetTimeout <= 0 {
		settings.ResetTimeout = 60 * time.Second
	}
	if settings.HalfOpenSuccessThreshold == 0 {
		settings.HalfOpenSuccessThreshold = 2
	}
	if settings.IsFailure == nil {
		settings.IsFailure = func(error) bool { return true }
	}
	if settings.Clock == nil {
		settings.Clock = glock.NewRealClock()
	}

	return &Breaker{
		name:     name,
		settings: settings,
		clock:    settings.Clock,
		state:    StateClosed,
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state. It never advances the state machine:
// an open breaker whose reset timeout has elapsed still reports open until
// the next call is admitted as a probe.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// Counts returns a copy of the consecutive counters
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts
}

// RetryAfter returns how long an open breaker keeps rejecting calls. It is
// zero when the breaker is not open or a probe is already due.
func (b *Breaker) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return 0
	}
	remaining := b.settings.ResetTimeout - b.clock.Now().Sub(b.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Stats returns a snapshot of state, counters and totals
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Name:            b.name,
		State:           b.state,
		Counts:          b.counts,
		OpenedAt:        b.openedAt,
		Generation:      b.generation,
		TotalSuccesses:  b.successes,
		TotalFailures:   b.failures,
		TotalRejections: b.rejections,
		TotalTimeouts:   b.timeouts,
	}
}

// Execute runs op if the breaker accepts it. Rejected calls return
// ErrCircuitOpen without invoking op; otherwise op's own error is returned
// unchanged, or ErrTimeout when Settings.Timeout elapses first.
func (b *Breaker) Execute(ctx context.Context, op Operation) (interface{}, error) {
	generation, err := b.beforeRequest()
	if err != nil {
		return nil, err
	}

	defer func() {
		e := recover()
		if e != nil {
			b.afterRequest(generation, outcomeFailure)
			panic(e)
		}
	}()

	result, err := b.call(ctx, op)
	if errors.Is(err, ErrTimeout) {
		b.recordTimeout()
	}
	b.afterRequest(generation, b.classify(ctx, err))
	return result, err
}

// Do is a typed wrapper around Execute
func Do[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	result, err := b.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return fn(ctx)
	})
	if result == nil {
		return zero, err
	}

	value, ok := result.(T)
	if !ok {
		return zero, err
	}
	return value, err
}

// call runs op, bounded by the configured timeout
func (b *Breaker) call(ctx context.Context, op Operation) (interface{}, error) {
	if b.settings.Timeout <= 0 {
		return op(ctx)
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		value    interface{}
		err      error
		panicked bool
		panicVal interface{}
	}

	ch := make(chan result, 1)
	go func() {
		defer func() {
			if e := recover(); e != nil {
				ch <- result{panicked: true, panicVal: e}
			}
		}()
		value, err := op(callCtx)
		ch <- result{value: value, err: err}
	}()

	select {
	case r := <-ch:
		if r.panicked {
			panic(r.panicVal)
		}
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.clock.After(b.settings.Timeout):
		return nil, ErrTimeout
	}
}

// classify maps an operation error onto a breaker outcome. Cancellation
// by the caller says nothing about the dependency and is neutral.
func (b *Breaker) classify(ctx context.Context, err error) outcome {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, ErrTimeout):
		return outcomeFailure
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return outcomeNeutral
	case !b.settings.IsFailure(err):
		return outcomeSuccess
	default:
		return outcomeFailure
	}
}

// beforeRequest is called before a request is executed
func (b *Breaker) beforeRequest() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.clock.Now().Sub(b.openedAt) < b.settings.ResetTimeout {
			b.rejections++
			return b.generation, ErrCircuitOpen
		}
		b.setState(StateHalfOpen)
		b.probeInFlight = true
	case StateHalfOpen:
		if b.probeInFlight {
			b.rejections++
			return b.generation, ErrProbeInFlight
		}
		b.probeInFlight = true
	}

	return b.generation, nil
}

// afterRequest is called after a request is executed. Results that belong
// to an earlier generation are dropped.
func (b *Breaker) afterRequest(before uint64, result outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.generation != before {
		return
	}

	if b.state == StateHalfOpen {
		b.probeInFlight = false
	}

	switch result {
	case outcomeSuccess:
		b.onSuccess()
	case outcomeFailure:
		b.onFailure()
	}
}

// onSuccess handles successful requests
func (b *Breaker) onSuccess() {
	b.successes++

	switch b.state {
	case StateClosed:
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
	case StateHalfOpen:
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if b.counts.ConsecutiveSuccesses >= b.settings.HalfOpenSuccessThreshold {
			b.setState(StateClosed)
		}
	}
}

// onFailure handles failed requests
func (b *Breaker) onFailure() {
	b.failures++

	switch b.state {
	case StateClosed:
		b.counts.ConsecutiveFailures++
		b.counts.ConsecutiveSuccesses = 0
		if b.counts.ConsecutiveFailures >= b.settings.FailureThreshold {
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.setState(StateOpen)
	}
}

func (b *Breaker) recordTimeout() {
	b.mu.Lock()
	b.timeouts++
	b.mu.Unlock()
}

// setState changes the state of the circuit breaker
func (b *Breaker) setState(state State) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state
	b.counts = Counts{}
	b.probeInFlight = false
	b.generation++

	if state == StateOpen {
		b.openedAt = b.clock.Now()
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}
