package chaos

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// StatusClientClosedRequest is used when the client leaves during an injected delay
const StatusClientClosedRequest = 499

// DefaultExemptPaths are never subject to injection so operators can always
// observe and switch chaos off
var DefaultExemptPaths = []string{"/health", "/ready", "/metrics", "/chaos", "/api/chaos", "/events"}

// Middleware gates every non-exempt request through the controller. An
// injected failure aborts the chain with a 500 carrying the active configuration.
func Middleware(ctrl *Controller, exempt []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isExempt(c.Request.URL.Path, exempt) {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = "not_found"
		}

		verdict, err := ctrl.Gate(c.Request.Context(), route)
		if err != nil {
			c.AbortWithStatus(StatusClientClosedRequest)
			return
		}

		if verdict.Inject {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":       "Chaos monkey struck!",
				"chaosConfig": verdict.Config,
			})
			return
		}

		c.Next()
	}
}

func isExempt(path string, exempt []string) bool {
	for _, prefix := range exempt {
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}
