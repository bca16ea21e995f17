// Package users implements the user records served under /api/users.
//
// Records live in the data store behind the circuit breaker, so every call
// here can fail with resilience.ErrCircuitOpen while the store is unhealthy.
// Callers map that to 503 and ErrNotFound, ErrEmailExists and
// *ValidationError to 404, 409 and 400.
package users
