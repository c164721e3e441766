// Package live streams trip and rollup events to dashboard clients over
// WebSocket.
package live

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Event is one message pushed to subscribers
type Event struct {
	Type      string      `json:"type"`
	StaffID   string      `json:"staffId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Hub maintains active WebSocket connections and broadcasts events
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	origins    []string
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a hub accepting connections from the given origins ("*" for any)
func NewHub(allowedOrigins []string) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		origins:    allowedOrigins,
		done:       make(chan struct{}),
	}
}

// Run dispatches events until ctx is cancelled, then disconnects every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			log.Info().
				Str("client_id", client.ID).
				Str("staff_filter", client.StaffID).
				Int("clients", total).
				Msg("Live client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Info().
				Str("client_id", client.ID).
				Int("clients", total).
				Msg("Live client disconnected")

		case event := <-h.broadcast:
			h.dispatch(event)
		}
	}
}

func (h *Hub) dispatch(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("type", event.Type).Msg("Failed to marshal live event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.wants(event) {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Slow consumer: drop it rather than stall every other client
			delete(h.clients, client)
			close(client.send)
			log.Warn().Str("client_id", client.ID).Msg("Live client buffer full, disconnecting")
		}
	}
}

// Publish queues an event for broadcast. It never blocks; when the hub is
// saturated the event is dropped.
func (h *Hub) Publish(eventType, staffID string, data interface{}) {
	event := Event{
		Type:      eventType,
		StaffID:   staffID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	select {
	case h.broadcast <- event:
	default:
		log.Warn().Str("type", eventType).Msg("Live event dropped, hub is saturated")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range h.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
