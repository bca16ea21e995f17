package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Options configures a Provider
type Options struct {
	ServiceName string
	// Stdout exports finished spans as JSON to Writer (default os.Stdout)
	Stdout bool
	Writer io.Writer
	// Exporter overrides the stdout exporter
	Exporter sdktrace.SpanExporter
}

// Provider owns the tracer provider and propagator for the process
type Provider struct {
	provider    *sdktrace.TracerProvider
	propagator  propagation.TextMapPropagator
	serviceName string
}

// New creates a provider. Without an exporter spans are still created and
// carry valid IDs but are not exported anywhere.
func New(opts Options) (*Provider, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = "backend"
	}

	exporter := opts.Exporter
	if exporter == nil && opts.Stdout {
		w := opts.Writer
		if w == nil {
			w = os.Stdout
		}
		var err error
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(resource.NewWithAttributes(
			"",
			attribute.String("service.name", opts.ServiceName),
		)),
	}
	if exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}

	return &Provider{
		provider: sdktrace.NewTracerProvider(tpOpts...),
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
		serviceName: opts.ServiceName,
	}, nil
}

// TracerProvider exposes the underlying provider for instrumentation libraries
func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.provider
}

// Propagator returns the W3C trace context propagator
func (p *Provider) Propagator() propagation.TextMapPropagator {
	return p.propagator
}

// ServiceName returns the service name spans are reported under
func (p *Provider) ServiceName() string {
	return p.serviceName
}

// Tracer returns a named tracer
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.provider.Tracer(name)
}

// ForceFlush exports every finished span still queued in the batcher
func (p *Provider) ForceFlush(ctx context.Context) error {
	return p.provider.ForceFlush(ctx)
}

// Shutdown flushes pending spans and stops the exporter
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}

// TraceID returns the trace ID carried by ctx, or "" when there is none
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
