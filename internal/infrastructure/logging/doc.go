// Package logging builds the process logger on uber/zap.
//
// Production mode writes JSON, development mode writes colored console output
// with stack traces on warnings. Every entry carries the service name,
// version and environment so logs from several instances can be told apart.
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: "info", Service: "ironclad-sre-demo"})
//	logger.Info("Server started", zap.String("port", "3000"))
//	logging.WithRequestID(logger.Logger, id).Warn("Database health check failed", zap.Error(err))
package logging
