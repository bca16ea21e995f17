/*
Package server wires the service together and runs it.

New builds every component from a config.Config: the data store behind its
circuit breaker, the chaos controller, metrics and SLIs, tracing, the event
hub and the optional gRPC health server. Breaker transitions fan out to the
log, metrics, the event stream and gRPC health.

Middleware order on the router:

	RequestID -> Logger -> tracing -> metrics -> Recovery -> CORS -> chaos gate
	/api group:  rate limit -> chaos gate

The global chaos gate skips /api; the group gate runs after the rate limiter
so requests failed by chaos still spend tokens. Rate limiting applies to /api
only. Responses are gzip compressed unless the
request is a WebSocket upgrade.

Run blocks until its context is cancelled, then drains in-flight requests
within ShutdownTimeout and closes the store.
*/
package server
