/*
Package chaos injects synthetic latency and failures into inbound requests.

The Controller holds a small configuration (enabled, latency, error rate) that
operators change at runtime through the admin endpoints. Every gated request
reads a consistent copy of it, waits for the configured latency on its own
timer, and is then failed with the configured probability.

	ctrl := chaos.New(chaos.Options{Logger: logger, Observer: metrics})
	router.Use(chaos.Middleware(ctrl, chaos.DefaultExemptPaths))

	ctrl.SetLatency(5000)
	ctrl.SetErrorRate(0.3)
	ctrl.Disable() // back to a passthrough, latency and rate zeroed
*/
package chaos
