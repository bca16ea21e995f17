package monitoring

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StatusClientClosedRequest is recorded when the client goes away before a response is written
const StatusClientClosedRequest = 499

// RouteLabel returns the route template of the matched handler, or
// "not_found" for unmatched requests, keeping label cardinality bounded.
func RouteLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "not_found"
}

// Middleware creates a Gin middleware for metrics collection. Every request
// that enters it is finished exactly once, including when a later handler panics.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		token := metrics.RecordStart(RouteLabel(c), c.Request.Method)

		defer func() {
			if e := recover(); e != nil {
				metrics.RecordFinish(token, http.StatusInternalServerError, time.Since(start))
				panic(e)
			}

			status := c.Writer.Status()
			if !c.Writer.Written() && c.Request.Context().Err() != nil {
				status = StatusClientClosedRequest
			}
			metrics.RecordFinish(token, status, time.Since(start))
		}()

		c.Next()
	}
}

// Timer measures a data store operation
type Timer struct {
	start     time.Time
	metrics   *Metrics
	operation string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, operation string) *Timer {
	return &Timer{
		start:     time.Now(),
		metrics:   metrics,
		operation: operation,
	}
}

// Stop stops the timer and records the duration
func (t *Timer) Stop(outcome string) {
	if t.metrics == nil {
		return
	}
	t.metrics.ObserveStoreOperation(t.operation, outcome, time.Since(t.start))
}
