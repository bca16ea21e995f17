// Package config provides 12-factor configuration management for the backend.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, environment, shutdown timeout)
//   - Store: Data store driver (redis or badger) and connection settings
//   - Breaker: Circuit breaker thresholds and timeouts
//   - Chaos: Paths exempt from chaos injection
//   - SLO: SLI calculator, window and objectives file
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting for /api
//   - Tracing: OpenTelemetry settings
//   - GRPC: gRPC health server
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
package config
