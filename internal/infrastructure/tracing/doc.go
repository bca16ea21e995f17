/*
Package tracing wires OpenTelemetry into the HTTP server and the data store.

# Overview

A Provider owns the SDK tracer provider for the process. Requests get a server
span from otelgin, W3C trace context is honoured on the way in, and the trace
ID is returned to clients in the X-Trace-ID header so a failing call can be
matched to its log lines. The guarded data store opens a child span for every
call it makes through the circuit breaker.

# Usage

	provider, err := tracing.New(tracing.Options{ServiceName: "ironclad", Stdout: true})
	if err != nil {
		return err
	}
	defer provider.Shutdown(context.Background())

	router.Use(tracing.HTTPMiddleware(provider)...)
*/
package tracing
