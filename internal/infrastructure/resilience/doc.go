/*
Package resilience provides the circuit breaker that guards calls to the downstream data store.

# Overview

A breaker sits around a single dependency. It counts consecutive failures, trips open
when they reach a threshold, and after a reset timeout admits one probe call at a time
until enough probes succeed to close it again.

# Features

- Three-state circuit breaker (Closed, Open, Half-Open)
- Single probe admission in half-open state
- Optional per-call timeout that cancels the operation context
- Pluggable failure classification
- Injectable clock for deterministic tests
- State change callbacks for logging, metrics and health reporting

# Usage

	breaker := resilience.New("datastore", resilience.Settings{
		FailureThreshold:         5,
		ResetTimeout:             60 * time.Second,
		HalfOpenSuccessThreshold: 2,
		IsFailure: func(err error) bool {
			return !errors.Is(err, store.ErrNotFound)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	user, err := resilience.Do(ctx, breaker, func(ctx context.Context) (*User, error) {
		return repo.Get(ctx, id)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		// dependency is unavailable, fail fast
	}

# States

- Closed: Normal operation, requests pass through
- Open: Requests fail immediately with ErrCircuitOpen
- Half-Open: One probe at a time; other callers get ErrProbeInFlight

# Pattern

	Closed --[N failures]-> Open --[reset timeout, next call]-> Half-Open --[M successes]-> Closed
	                                                              |
	                                                          [failure]
	                                                              |
	                                                              v
	                                                            Open

Caller cancellation is neutral. A result that arrives after the breaker has
already changed state is ignored.
*/
package resilience
