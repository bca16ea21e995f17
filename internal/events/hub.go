package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/efritz/glock"

	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/chaos"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/ironclad/backend/internal/shared/id"
)

// Event types
const (
	TypeSystem             = "system"
	TypeBreakerStateChange = "breaker.state_changed"
	TypeChaosConfigChange  = "chaos.config_changed"
)

// DefaultBuffer is the number of events queued per subscriber
const DefaultBuffer = 64

// Event is one message on the stream
type Event struct {
	ID        id.EventID  `json:"id"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// BreakerChange is the payload of breaker.state_changed
type BreakerChange struct {
	Breaker string `json:"breaker"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// Hub fans events out to subscribers. Publishing never blocks: a subscriber
// whose queue is full misses the event and its Dropped count goes up.
type Hub struct {
	clock  glock.Clock
	buffer int

	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// Subscription receives encoded events on C until closed
type Subscription struct {
	C <-chan []byte

	ch      chan []byte
	hub     *Hub
	once    sync.Once
	dropped atomic.Uint64
}

// NewHub creates a hub. clock may be nil.
func NewHub(clock glock.Clock, buffer int) *Hub {
	if clock == nil {
		clock = glock.NewRealClock()
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		clock:  clock,
		buffer: buffer,
		subs:   make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscriber
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan []byte, h.buffer)
	sub := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Subscribers returns the number of live subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish sends an event of the given type to every subscriber
func (h *Hub) Publish(eventType string, data interface{}) error {
	payload, err := h.encode(eventType, data)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- payload:
		default:
			sub.dropped.Add(1)
		}
	}
	return nil
}

func (h *Hub) encode(eventType string, data interface{}) ([]byte, error) {
	return sonic.Marshal(Event{
		ID:        id.NewEventID(),
		Type:      eventType,
		Timestamp: h.clock.Now().UTC(),
		Data:      data,
	})
}

// BreakerStateChanged publishes a breaker transition. It matches
// resilience.Settings.OnStateChange and runs under the breaker lock, so it
// only enqueues.
func (h *Hub) BreakerStateChanged(name string, from, to resilience.State) {
	_ = h.Publish(TypeBreakerStateChange, BreakerChange{
		Breaker: name,
		From:    from.String(),
		To:      to.String(),
	})
}

// ChaosConfigChanged publishes a new chaos configuration. It matches
// chaos.Options.OnChange.
func (h *Hub) ChaosConfigChanged(cfg chaos.Config) {
	_ = h.Publish(TypeChaosConfigChange, cfg)
}

// Close ends every subscription. Handlers see their channel close and hang up.
func (h *Hub) Close() {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
		close(s.ch)
	})
}

// Dropped returns the number of events this subscriber missed
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}
