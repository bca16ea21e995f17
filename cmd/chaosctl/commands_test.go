package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/efritz/glock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/server"
	"github.com/GriffinCanCode/ironclad/backend/internal/store"
)

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Store.Driver = "badger"
	cfg.Tracing.Enabled = false

	db, err := store.OpenBadger("")
	require.NoError(t, err)
	srv, err := server.New(cfg, server.Options{
		Clock:  glock.NewMockClock(),
		Logger: logging.NewNop(),
		Store:  db,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})
	return ts
}

func run(t *testing.T, addr string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--addr", addr, "--retries", "0"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	ts := startServer(t)

	out, err := run(t, ts.URL, "enable")
	require.NoError(t, err)
	assert.Contains(t, out, "Chaos enabled")
	assert.Contains(t, out, "enabled:   true")

	out, err = run(t, ts.URL, "latency", "150")
	require.NoError(t, err)
	assert.Contains(t, out, "Latency set to 150ms")

	out, err = run(t, ts.URL, "errors", "0.25")
	require.NoError(t, err)
	assert.Contains(t, out, "Error rate set to 25%")

	out, err = run(t, ts.URL, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "latency:   150ms")
	assert.Contains(t, out, "errorRate: 0.25")

	out, err = run(t, ts.URL, "--json", "status")
	require.NoError(t, err)
	assert.Contains(t, out, `"latencyMs": 150`)

	out, err = run(t, ts.URL, "disable")
	require.NoError(t, err)
	assert.Contains(t, out, "Chaos disabled")

	out, err = run(t, ts.URL, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "status:          healthy")

	out, err = run(t, ts.URL, "slo")
	require.NoError(t, err)
	assert.Contains(t, out, "availability")
	assert.Contains(t, out, "over 30 days")
}

func TestCommandArgumentErrors(t *testing.T) {
	ts := startServer(t)

	_, err := run(t, ts.URL, "latency", "fast")
	assert.ErrorContains(t, err, "integer number of milliseconds")

	_, err = run(t, ts.URL, "latency")
	assert.Error(t, err)

	_, err = run(t, ts.URL, "errors", "2")
	assert.ErrorContains(t, err, "Invalid error rate (0-1)")
}

func TestHealthPrintsUnhealthyReport(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unhealthy","checks":{"database":"unhealthy","circuitBreaker":"OPEN"}}`))
	}))
	defer ts.Close()

	out, err := run(t, ts.URL, "health")
	assert.Error(t, err)
	assert.Contains(t, out, "circuit breaker: OPEN")
}
