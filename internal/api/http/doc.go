// Package http implements the HTTP handlers of the server: health and
// readiness probes, the Prometheus scrape endpoint, the chaos admin API,
// the SLO report and the users resource.
//
// Handlers never talk to a store driver directly. Every data path call goes
// through store.Guarded so a failing store trips the circuit breaker, and
// breaker rejections surface as 503 responses with Retry-After.
package http
