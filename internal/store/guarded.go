package store

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/resilience"
)

// IsFailure classifies store errors for the circuit breaker. A missing key is
// a healthy answer.
func IsFailure(err error) bool {
	return !errors.Is(err, ErrNotFound)
}

// Guarded routes every call to the inner store through a circuit breaker,
// with a span and a duration observation per call.
type Guarded struct {
	inner   Store
	breaker *resilience.Breaker
	tracer  trace.Tracer
	metrics *monitoring.Metrics
}

// NewGuarded wraps inner. tracer and metrics may be nil.
func NewGuarded(inner Store, breaker *resilience.Breaker, tracer trace.Tracer, metrics *monitoring.Metrics) *Guarded {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("store")
	}
	return &Guarded{
		inner:   inner,
		breaker: breaker,
		tracer:  tracer,
		metrics: metrics,
	}
}

// Breaker returns the breaker guarding the store
func (g *Guarded) Breaker() *resilience.Breaker {
	return g.breaker
}

// Unguarded returns the inner store, bypassing the breaker
func (g *Guarded) Unguarded() Store {
	return g.inner
}

// Ping checks the store through the breaker
func (g *Guarded) Ping(ctx context.Context) error {
	_, err := guard(ctx, g, "ping", "", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.inner.Ping(ctx)
	})
	return err
}

// Get returns the value of key
func (g *Guarded) Get(ctx context.Context, key string) ([]byte, error) {
	return guard(ctx, g, "get", key, func(ctx context.Context) ([]byte, error) {
		return g.inner.Get(ctx, key)
	})
}

// Put sets key to value
func (g *Guarded) Put(ctx context.Context, key string, value []byte) error {
	_, err := guard(ctx, g, "put", key, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.inner.Put(ctx, key, value)
	})
	return err
}

// PutIfAbsent sets key only when it does not exist
func (g *Guarded) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	return guard(ctx, g, "put_if_absent", key, func(ctx context.Context) (bool, error) {
		return g.inner.PutIfAbsent(ctx, key, value)
	})
}

// Delete removes key
func (g *Guarded) Delete(ctx context.Context, key string) error {
	_, err := guard(ctx, g, "delete", key, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.inner.Delete(ctx, key)
	})
	return err
}

// Scan returns up to limit entries under prefix
func (g *Guarded) Scan(ctx context.Context, prefix string, limit int) ([]Entry, error) {
	return guard(ctx, g, "scan", prefix, func(ctx context.Context) ([]Entry, error) {
		return g.inner.Scan(ctx, prefix, limit)
	})
}

// Close closes the inner store
func (g *Guarded) Close() error {
	return g.inner.Close()
}

func guard[T any](ctx context.Context, g *Guarded, op, key string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := g.tracer.Start(ctx, "store."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	if key != "" {
		span.SetAttributes(attribute.String("store.key", key))
	}

	timer := monitoring.NewTimer(g.metrics, op)
	value, err := resilience.Do(ctx, g.breaker, fn)

	result := outcome(err)
	timer.Stop(result)
	span.SetAttributes(
		attribute.String("store.outcome", result),
		attribute.String("breaker.state", g.breaker.State().String()),
	)
	if err != nil && result != "not_found" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return value, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "rejected"
	case errors.Is(err, resilience.ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}
