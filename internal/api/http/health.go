package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ironclad/backend/internal/api/middleware"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/logging"
)

// Health reports the data store and circuit breaker. The store is pinged
// directly so the answer reflects the store itself, not the breaker's view.
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), HealthCheckTimeout)
	defer cancel()

	healthy := true
	if err := h.store.Unguarded().Ping(ctx); err != nil {
		healthy = false
		h.logger.Warn("Database health check failed",
			logging.RequestID(middleware.GetRequestID(c)),
			zap.Error(err))
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": h.clock.Now().UTC().Format(time.RFC3339Nano),
		"checks": gin.H{
			"database":       status,
			"circuitBreaker": h.store.Breaker().State().String(),
		},
	})
}

// Ready pings the data store through the breaker. An open breaker makes the
// instance not ready without touching the store.
func (h *Handlers) Ready(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "Database connection failed",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Metrics refreshes the SLI gauges and serves the Prometheus exposition
func (h *Handlers) Metrics(c *gin.Context) {
	if err := h.metrics.UpdateSLIs(); err != nil {
		h.logger.Error("Failed to update SLIs", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}
