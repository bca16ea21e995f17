package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/efritz/glock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDownstream = errors.New("downstream failed")

func succeed(context.Context) (interface{}, error) { return "ok", nil }
func fail(context.Context) (interface{}, error)    { return nil, errDownstream }

func newTestBreaker(clock glock.Clock, settings Settings) *Breaker {
	settings.Clock = clock
	return New("test", settings)
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		settings      Settings
		requests      []bool // true = success, false = failure
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			settings:      Settings{FailureThreshold: 3, ResetTimeout: time.Minute},
			requests:      []bool{true, true, true},
			expectedState: StateClosed,
		},
		{
			name:          "stays closed one short of threshold",
			settings:      Settings{FailureThreshold: 3, ResetTimeout: time.Minute},
			requests:      []bool{false, false},
			expectedState: StateClosed,
		},
		{
			name:          "opens at exactly the threshold",
			settings:      Settings{FailureThreshold: 3, ResetTimeout: time.Minute},
			requests:      []bool{false, false, false},
			expectedState: StateOpen,
		},
		{
			name:          "success resets consecutive failures",
			settings:      Settings{FailureThreshold: 3, ResetTimeout: time.Minute},
			requests:      []bool{false, false, true, false, false},
			expectedState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := newTestBreaker(glock.NewMockClock(), tt.settings)

			for _, success := range tt.requests {
				op := fail
				if success {
					op = succeed
				}
				_, _ = breaker.Execute(context.Background(), op)
			}

			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	breaker := newTestBreaker(glock.NewMockClock(), Settings{FailureThreshold: 5})

	_, err := breaker.Execute(context.Background(), succeed)
	require.NoError(t, err)

	counts := breaker.Counts()
	assert.Equal(t, uint32(1), counts.ConsecutiveSuccesses)
	assert.Equal(t, uint32(0), counts.ConsecutiveFailures)

	_, err = breaker.Execute(context.Background(), fail)
	assert.ErrorIs(t, err, errDownstream)

	counts = breaker.Counts()
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)

	stats := breaker.Stats()
	assert.Equal(t, uint64(1), stats.TotalSuccesses)
	assert.Equal(t, uint64(1), stats.TotalFailures)
}

func TestBreakerOpenRejectsWithoutInvoking(t *testing.T) {
	clock := glock.NewMockClock()
	breaker := newTestBreaker(clock, Settings{FailureThreshold: 2, ResetTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, _ = breaker.Execute(context.Background(), fail)
	}
	require.Equal(t, StateOpen, breaker.State())

	var calls int32
	for i := 0; i < 10; i++ {
		_, err := breaker.Execute(context.Background(), func(context.Context) (interface{}, error) {
			atomic.AddInt32(&calls, 1)
			return "ok", nil
		})
		assert.ErrorIs(t, err, ErrCircuitOpen)
	}

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	assert.Equal(t, uint64(10), breaker.Stats().TotalRejections)
}

func TestBreakerRecoveryScenario(t *testing.T) {
	clock := glock.NewMockClock()
	breaker := newTestBreaker(clock, Settings{
		FailureThreshold:         5,
		ResetTimeout:             60 * time.Second,
		HalfOpenSuccessThreshold: 2,
	})

	for i := 0; i < 5; i++ {
		_, err := breaker.Execute(context.Background(), fail)
		require.ErrorIs(t, err, errDownstream)
	}
	require.Equal(t, StateOpen, breaker.State())
	openedAt := breaker.Stats().OpenedAt

	clock.Advance(30 * time.Second)
	_, err := breaker.Execute(context.Background(), succeed)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, StateOpen, breaker.State())

	clock.Advance(30 * time.Second)
	_, err = breaker.Execute(context.Background(), succeed)
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, breaker.State())
	assert.Equal(t, uint32(1), breaker.Counts().ConsecutiveSuccesses)

	_, err = breaker.Execute(context.Background(), succeed)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, Counts{}, breaker.Counts())
	assert.Equal(t, openedAt, breaker.Stats().OpenedAt)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := glock.NewMockClock()
	breaker := newTestBreaker(clock, Settings{
		FailureThreshold:         1,
		ResetTimeout:             10 * time.Second,
		HalfOpenSuccessThreshold: 3,
	})

	_, _ = breaker.Execute(context.Background(), fail)
	require.Equal(t, StateOpen, breaker.State())
	firstOpened := breaker.Stats().OpenedAt

	clock.Advance(10 * time.Second)
	_, err := breaker.Execute(context.Background(), succeed)
	require.NoError(t, err)
	require.Equal(t, StateHalfOpen, breaker.State())

	_, err = breaker.Execute(context.Background(), fail)
	assert.ErrorIs(t, err, errDownstream)
	assert.Equal(t, StateOpen, breaker.State())
	assert.Equal(t, Counts{}, breaker.Counts())

	stats := breaker.Stats()
	assert.Equal(t, firstOpened.Add(10*time.Second), stats.OpenedAt)

	// the new open period is measured from the reopen
	clock.Advance(5 * time.Second)
	_, err = breaker.Execute(context.Background(), succeed)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerSingleProbe(t *testing.T) {
	clock := glock.NewMockClock()
	breaker := newTestBreaker(clock, Settings{
		FailureThreshold:         1,
		ResetTimeout:             time.Second,
		HalfOpenSuccessThreshold: 1,
	})

	_, _ = breaker.Execute(context.Background(), fail)
	clock.Advance(time.Second)

	var (
		calls   int32
		started = make(chan struct{})
		release = make(chan struct{})
		probe   = make(chan error, 1)
	)

	go func() {
		_, err := breaker.Execute(context.Background(), func(context.Context) (interface{}, error) {
			atomic.AddInt32(&calls, 1)
			close(started)
			<-release
			return "ok", nil
		})
		probe <- err
	}()
	<-started

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := breaker.Execute(context.Background(), func(context.Context) (interface{}, error) {
				atomic.AddInt32(&calls, 1)
				return "ok", nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, ErrProbeInFlight)
		assert.ErrorIs(t, err, ErrCircuitOpen)
	}

	close(release)
	require.NoError(t, <-probe)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerHalfOpenAdmitsOneCallerUnderRace(t *testing.T) {
	const callers = 50

	clock := glock.NewMockClock()
	breaker := newTestBreaker(clock, Settings{
		FailureThreshold:         1,
		ResetTimeout:             time.Second,
		HalfOpenSuccessThreshold: 1,
	})

	_, _ = breaker.Execute(context.Background(), fail)
	clock.Advance(time.Second)

	var (
		calls   int32
		start   = make(chan struct{})
		release = make(chan struct{})
		errs    = make(chan error, callers)
	)

	for i := 0; i < callers; i++ {
		go func() {
			<-start
			_, err := breaker.Execute(context.Background(), func(context.Context) (interface{}, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return "ok", nil
			})
			errs <- err
		}()
	}
	close(start)

	// the admitted call holds its slot until released, so every other caller is rejected first
	for i := 0; i < callers-1; i++ {
		assert.ErrorIs(t, <-errs, ErrCircuitOpen)
	}
	close(release)
	require.NoError(t, <-errs)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerTimeout(t *testing.T) {
	clock := glock.NewMockClock()
	breaker := newTestBreaker(clock, Settings{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		Timeout:          time.Second,
	})

	var (
		cancelled = make(chan struct{})
		errs      = make(chan error, 1)
	)

	go func() {
		_, err := breaker.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		})
		errs <- err
	}()

	for len(clock.GetAfterArgs()) == 0 {
		time.Sleep(time.Millisecond)
	}
	clock.Advance(2 * time.Second)

	assert.ErrorIs(t, <-errs, ErrTimeout)
	<-cancelled

	stats := breaker.Stats()
	assert.Equal(t, StateOpen, stats.State)
	assert.Equal(t, uint64(1), stats.TotalTimeouts)
	assert.Equal(t, uint64(1), stats.TotalFailures)
}

func TestBreakerTimeoutNotReached(t *testing.T) {
	clock := glock.NewMockClock()
	breaker := newTestBreaker(clock, Settings{Timeout: time.Minute})

	result, err := breaker.Execute(context.Background(), succeed)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	args := clock.GetAfterArgs()
	require.Len(t, args, 1)
	assert.Equal(t, time.Minute, args[0])
}

func TestBreakerFailureClassifier(t *testing.T) {
	errMissing := errors.New("missing")
	breaker := newTestBreaker(glock.NewMockClock(), Settings{
		FailureThreshold: 2,
		IsFailure: func(err error) bool {
			return !errors.Is(err, errMissing)
		},
	})

	for i := 0; i < 5; i++ {
		_, err := breaker.Execute(context.Background(), func(context.Context) (interface{}, error) {
			return nil, errMissing
		})
		assert.ErrorIs(t, err, errMissing)
	}

	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, uint32(0), breaker.Counts().ConsecutiveFailures)
}

func TestBreakerStateIsReadOnly(t *testing.T) {
	clock := glock.NewMockClock()
	breaker := newTestBreaker(clock, Settings{FailureThreshold: 1, ResetTimeout: time.Second})

	_, _ = breaker.Execute(context.Background(), fail)
	before := breaker.Stats()

	clock.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		assert.Equal(t, StateOpen, breaker.State())
	}
	assert.Equal(t, before, breaker.Stats())
}

func TestBreakerRetryAfter(t *testing.T) {
	clock := glock.NewMockClock()
	breaker := newTestBreaker(clock, Settings{FailureThreshold: 1, ResetTimeout: time.Minute})
	assert.Zero(t, breaker.RetryAfter())

	_, _ = breaker.Execute(context.Background(), fail)
	assert.Equal(t, time.Minute, breaker.RetryAfter())

	clock.Advance(45 * time.Second)
	assert.Equal(t, 15*time.Second, breaker.RetryAfter())

	clock.Advance(time.Minute)
	assert.Zero(t, breaker.RetryAfter())
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	breaker := newTestBreaker(glock.NewMockClock(), Settings{FailureThreshold: 1})

	assert.PanicsWithValue(t, "boom", func() {
		_, _ = breaker.Execute(context.Background(), func(context.Context) (interface{}, error) {
			panic("boom")
		})
	})

	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerPanicWithTimeout(t *testing.T) {
	breaker := newTestBreaker(glock.NewMockClock(), Settings{FailureThreshold: 1, Timeout: time.Minute})

	assert.PanicsWithValue(t, "boom", func() {
		_, _ = breaker.Execute(context.Background(), func(context.Context) (interface{}, error) {
			panic("boom")
		})
	})

	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerCallerCancellationIsNeutral(t *testing.T) {
	clock := glock.NewMockClock()
	breaker := newTestBreaker(clock, Settings{
		FailureThreshold:         1,
		ResetTimeout:             time.Second,
		HalfOpenSuccessThreshold: 1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, breaker.State())

	_, _ = breaker.Execute(context.Background(), fail)
	clock.Advance(time.Second)

	// a cancelled probe frees the slot without moving the state
	_, err = breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateHalfOpen, breaker.State())

	_, err = breaker.Execute(context.Background(), succeed)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerIgnoresStaleResults(t *testing.T) {
	breaker := newTestBreaker(glock.NewMockClock(), Settings{FailureThreshold: 1, ResetTimeout: time.Minute})

	var (
		started = make(chan struct{})
		release = make(chan struct{})
		done    = make(chan struct{})
	)

	go func() {
		defer close(done)
		_, _ = breaker.Execute(context.Background(), func(context.Context) (interface{}, error) {
			close(started)
			<-release
			return "late", nil
		})
	}()
	<-started

	_, _ = breaker.Execute(context.Background(), fail)
	require.Equal(t, StateOpen, breaker.State())
	generation := breaker.Stats().Generation

	close(release)
	<-done

	stats := breaker.Stats()
	assert.Equal(t, StateOpen, stats.State)
	assert.Equal(t, generation, stats.Generation)
	assert.Equal(t, Counts{}, stats.Counts)
}

func TestBreakerCallbacks(t *testing.T) {
	var transitions []string

	clock := glock.NewMockClock()
	breaker := newTestBreaker(clock, Settings{
		FailureThreshold:         2,
		ResetTimeout:             10 * time.Second,
		HalfOpenSuccessThreshold: 1,
		OnStateChange: func(name string, from State, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	for i := 0; i < 2; i++ {
		_, _ = breaker.Execute(context.Background(), fail)
	}
	clock.Advance(10 * time.Second)
	_, _ = breaker.Execute(context.Background(), succeed)

	assert.Equal(t, []string{
		"CLOSED->OPEN",
		"OPEN->HALF_OPEN",
		"HALF_OPEN->CLOSED",
	}, transitions)
}

func TestDo(t *testing.T) {
	breaker := newTestBreaker(glock.NewMockClock(), Settings{})

	n, err := Do(context.Background(), breaker, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	n, err = Do(context.Background(), breaker, func(context.Context) (int, error) {
		return 0, errDownstream
	})
	assert.ErrorIs(t, err, errDownstream)
	assert.Zero(t, n)
}
