// Package main is the entry point for the resilience demo backend.
//
// The server fronts a key-value data store with a circuit breaker, exposes
// Prometheus metrics and SLOs, and lets operators inject latency and errors
// through the chaos admin API.
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Redis backed
//	./server -port 3000 -redis localhost:6379
//
//	# Embedded store, windowed SLIs, debug logs
//	./server -store badger -sli window -dev -log-level debug
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
