package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/efritz/glock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/ironclad/backend/internal/events"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/ironclad/backend/internal/store"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Store.Driver = "badger"
	cfg.Tracing.Enabled = false
	cfg.Breaker.FailureThreshold = 2
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := store.OpenBadger("")
	require.NoError(t, err)

	s, err := New(cfg, Options{
		Clock:  glock.NewMockClock(),
		Logger: logging.NewNop(),
		Store:  db,
	})
	require.NoError(t, err)
	return s
}

func serve(s *Server, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Driver = "postgres"

	_, err := New(cfg, Options{Logger: logging.NewNop()})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestServerRoutes(t *testing.T) {
	s := newTestServer(t, testConfig())
	t.Cleanup(func() { _ = s.Close() })

	w := serve(s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = serve(s, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(s, http.MethodPost, "/api/users", `{
		"first_name": "Ada",
		"last_name": "Lovelace",
		"email": "ada@example.com",
		"phone_number": "555-123-4567",
		"date_of_birth": "12/10/1985"
	}`, nil)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = serve(s, http.MethodGet, "/api/users", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Data, 1)

	w = serve(s, http.MethodGet, "/api/chaos/status", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServerCORSPreflight(t *testing.T) {
	s := newTestServer(t, testConfig())
	t.Cleanup(func() { _ = s.Close() })

	w := serve(s, http.MethodOptions, "/api/users", "", http.Header{
		"Origin":                        {"http://localhost:5173"},
		"Access-Control-Request-Method": {http.MethodPost},
	})

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServerCompressesResponses(t *testing.T) {
	s := newTestServer(t, testConfig())
	t.Cleanup(func() { _ = s.Close() })

	w := serve(s, http.MethodGet, "/metrics", "", http.Header{"Accept-Encoding": {"gzip"}})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
}

func TestServerRateLimitsAPI(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Max = 2
	s := newTestServer(t, cfg)
	t.Cleanup(func() { _ = s.Close() })

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/api/users", "", nil).Code)
	}
	w := serve(s, http.MethodGet, "/api/users", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// admin and health routes are outside the limited group
	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/chaos/status", "", nil).Code)
}

func TestServerRateLimitsBeforeChaos(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Max = 2
	s := newTestServer(t, cfg)
	t.Cleanup(func() { _ = s.Close() })

	_, err := s.Chaos().SetErrorRate(1)
	require.NoError(t, err)

	// injected failures still spend tokens
	for i := 0; i < 2; i++ {
		w := serve(s, http.MethodGet, "/api/users", "", nil)
		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "Chaos monkey struck!")
	}
	assert.Equal(t, http.StatusTooManyRequests, serve(s, http.MethodGet, "/api/users", "", nil).Code)

	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, int64(2), s.Chaos().Stats().FailedRequests)
}

func TestServerChaosReachesEvents(t *testing.T) {
	s := newTestServer(t, testConfig())
	t.Cleanup(func() { _ = s.Close() })

	sub := s.Events().Subscribe()
	defer sub.Close()

	w := serve(s, http.MethodPost, "/chaos/enable", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case payload := <-sub.C:
		var event events.Event
		require.NoError(t, json.Unmarshal(payload, &event))
		assert.Equal(t, events.TypeChaosConfigChange, event.Type)
	case <-time.After(time.Second):
		t.Fatal("no chaos event published")
	}
	assert.True(t, s.Chaos().Status().Enabled)
}

func TestServerBreakerFanOut(t *testing.T) {
	s := newTestServer(t, testConfig())
	t.Cleanup(func() { _ = s.Close() })

	sub := s.Events().Subscribe()
	defer sub.Close()

	for i := 0; i < 2; i++ {
		_, err := s.Breaker().Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("connection refused")
		})
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, s.Breaker().State())

	select {
	case payload := <-sub.C:
		var event events.Event
		require.NoError(t, json.Unmarshal(payload, &event))
		assert.Equal(t, events.TypeBreakerStateChange, event.Type)
	case <-time.After(time.Second):
		t.Fatal("no breaker event published")
	}

	text, err := s.Metrics().Snapshot()
	require.NoError(t, err)
	assert.Contains(t, text, `circuit_breaker_transitions_total{breaker="datastore",from="CLOSED",to="OPEN"} 1`)

	w := serve(s, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServerRunShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
