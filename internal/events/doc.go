// Package events streams operational events to WebSocket clients.
//
// The hub is fed by the circuit breaker (breaker.state_changed) and the chaos
// controller (chaos.config_changed); dashboards subscribe at GET /events.
//
// Message format (Server → Client):
//
//	{"id":"evt_01H...","type":"breaker.state_changed","timestamp":"...",
//	 "data":{"breaker":"datastore","from":"CLOSED","to":"OPEN"}}
//
// Example Usage:
//
//	hub := events.NewHub(nil, 0)
//	router.GET("/events", events.NewHandler(hub, logger).HandleConnection)
package events
