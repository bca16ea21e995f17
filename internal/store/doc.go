// Package store provides the downstream key-value data store.
//
// Two drivers are available: Redis (the default, shared between replicas)
// and Badger (embedded, in-memory when no path is given). Handlers never use
// a driver directly; they go through Guarded, which runs every call inside
// the data store circuit breaker and records a span and a duration for it.
//
// ErrNotFound is a normal answer and does not count against the breaker.
package store
