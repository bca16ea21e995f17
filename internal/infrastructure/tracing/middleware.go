package tracing

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// TraceIDHeader is set on every traced response
const TraceIDHeader = "X-Trace-ID"

// HTTPMiddleware returns the Gin handlers that start a server span per request
// and expose its trace ID in the response headers.
func HTTPMiddleware(p *Provider) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		otelgin.Middleware(p.ServiceName(),
			otelgin.WithTracerProvider(p.TracerProvider()),
			otelgin.WithPropagators(p.Propagator()),
		),
		traceIDHeader(),
	}
}

func traceIDHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := TraceID(c.Request.Context()); id != "" {
			c.Header(TraceIDHeader, id)
		}
		c.Next()
	}
}
