package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/logging"
)

// Recovery turns a handler panic into a 500 carrying the request ID. The
// panic value is logged, never echoed to the client.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			rid := GetRequestID(c)
			logging.WithRequestID(log, rid).Error("Unhandled error",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("error", fmt.Sprint(rec)),
				zap.StackSkip("stack", 2),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestId": rid,
			})
		}()

		c.Next()
	}
}
