// Package middleware provides the cross-cutting HTTP middleware of the server.
//
// Middleware stack includes:
//   - RequestID: X-Request-ID correlation, generated or propagated
//   - Logger: one structured zap entry per request
//   - Recovery: panics become a 500 carrying the request ID
//   - CORS: cross-origin resource sharing with configurable origins
//   - RateLimit: per-IP token bucket, 100 requests per 15 minutes by default
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.Logger(log), middleware.Recovery(log))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	api.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
