package events

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/efritz/glock"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/chaos"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/resilience"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case payload := <-sub.C:
		var event Event
		require.NoError(t, sonic.Unmarshal(payload, &event))
		return event
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestPublishFansOut(t *testing.T) {
	hub := NewHub(glock.NewMockClock(), 4)
	a, b := hub.Subscribe(), hub.Subscribe()
	defer a.Close()
	defer b.Close()

	hub.BreakerStateChanged("datastore", resilience.StateClosed, resilience.StateOpen)

	for _, sub := range []*Subscription{a, b} {
		event := receive(t, sub)
		assert.Equal(t, TypeBreakerStateChange, event.Type)
		assert.True(t, strings.HasPrefix(string(event.ID), "evt_"))
		data := event.Data.(map[string]interface{})
		assert.Equal(t, "datastore", data["breaker"])
		assert.Equal(t, "CLOSED", data["from"])
		assert.Equal(t, "OPEN", data["to"])
	}
}

func TestChaosConfigChanged(t *testing.T) {
	hub := NewHub(nil, 0)
	sub := hub.Subscribe()
	defer sub.Close()

	ctrl := chaos.New(chaos.Options{OnChange: hub.ChaosConfigChanged})
	_, err := ctrl.SetLatency(250)
	require.NoError(t, err)

	event := receive(t, sub)
	assert.Equal(t, TypeChaosConfigChange, event.Type)
	data := event.Data.(map[string]interface{})
	assert.Equal(t, true, data["enabled"])
	assert.Equal(t, float64(250), data["latencyMs"])
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(nil, 1)
	sub := hub.Subscribe()
	defer sub.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, hub.Publish(TypeSystem, nil))
	}
	assert.Equal(t, uint64(4), sub.Dropped())
}

func TestCloseUnsubscribes(t *testing.T) {
	hub := NewHub(nil, 0)
	sub := hub.Subscribe()
	assert.Equal(t, 1, hub.Subscribers())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.Subscribers())

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.NoError(t, hub.Publish(TypeSystem, nil))
}

func TestHubClose(t *testing.T) {
	hub := NewHub(nil, 0)
	a, b := hub.Subscribe(), hub.Subscribe()

	hub.Close()
	assert.Equal(t, 0, hub.Subscribers())
	for _, sub := range []*Subscription{a, b} {
		_, ok := <-sub.C
		assert.False(t, ok)
	}
}

func TestHandleConnection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil, 0)
	router := gin.New()
	router.GET("/events", NewHandler(hub, nil).HandleConnection)

	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() Event {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		var event Event
		require.NoError(t, sonic.Unmarshal(payload, &event))
		return event
	}

	assert.Equal(t, TypeSystem, read().Type)
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	hub.BreakerStateChanged("datastore", resilience.StateOpen, resilience.StateHalfOpen)
	assert.Equal(t, TypeBreakerStateChange, read().Type)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
