/*
Package monitoring provides request metrics, SLIs and error budget accounting.

# Overview

Metrics live on a private Prometheus registry so every server and every test
owns an isolated set. Requests are tracked with a start/finish token pair; the
Gin middleware guarantees the finish runs on every exit path so the
active_connections gauge always returns to its resting value.

# Features

- HTTP request metrics by method, route template and status class
- Active request gauge and per-endpoint 5xx counts
- Windowed per-endpoint error ratio
- Pluggable SLI calculators (static targets or sliding window)
- Error budget computation against YAML or TOML objectives, with hot reload
- Circuit breaker, chaos injection and data store metrics
- Go runtime and process collectors

# Usage

	metrics := monitoring.NewMetrics(monitoring.Options{})
	router.Use(monitoring.Middleware(metrics))

	router.GET("/metrics", func(c *gin.Context) {
		if err := metrics.UpdateSLIs(); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		metrics.Handler().ServeHTTP(c.Writer, c.Request)
	})

# SLI Calculators

StaticSLIs publishes fixed values (0.9995 availability, 150ms p99, 75% budget).
WindowedSLIs derives them from the requests of the last few minutes:

	window := monitoring.NewWindow(nil, 5*time.Minute, 10000)
	objectives := monitoring.NewObjectiveSet(monitoring.DefaultObjectives())
	metrics := monitoring.NewMetrics(monitoring.Options{
		Window:     window,
		Calculator: monitoring.NewWindowedSLIs(window, objectives),
	})
*/
package monitoring
