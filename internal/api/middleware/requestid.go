package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/ironclad/backend/internal/shared/id"
)

// RequestIDHeader carries the request correlation ID in both directions.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "requestId"

type requestIDCtxKey struct{}

// RequestID tags each request with a correlation ID. A well-formed incoming
// X-Request-ID is kept so IDs survive hops between services.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if !id.IsValidRequestID(rid) {
			rid = id.NewRequestID().String()
		}

		c.Set(requestIDKey, rid)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), requestIDCtxKey{}, rid))
		c.Header(RequestIDHeader, rid)
		c.Next()
	}
}

// GetRequestID returns the ID assigned by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RequestIDFromContext returns the ID stored on a request context, or "".
func RequestIDFromContext(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDCtxKey{}).(string)
	return rid
}
