// Package ws fans deployment event frames out to streaming subscribers.
package ws

import "sync"

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub manages stream subscriptions keyed by deployment ID. A subscriber whose
// Send fails is dropped from every stream it belongs to on the next write.
type Hub struct {
	mu      sync.Mutex
	streams map[string]map[Subscriber]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{streams: make(map[string]map[Subscriber]struct{})}
}

// Register adds a client to a deployment's stream.
func (h *Hub) Register(deploymentID string, client Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.streams[deploymentID]; !ok {
		h.streams[deploymentID] = make(map[Subscriber]struct{})
	}
	h.streams[deploymentID][client] = struct{}{}
}

// Unregister removes a client from a deployment's stream.
func (h *Hub) Unregister(deploymentID string, client Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.streams[deploymentID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.streams, deploymentID)
		}
	}
}

// Broadcast sends payload to every subscriber of the deployment's stream.
func (h *Hub) Broadcast(deploymentID string, payload []byte) {
	h.mu.Lock()
	clients, ok := h.streams[deploymentID]
	if !ok {
		h.mu.Unlock()
		return
	}
	targets := make([]Subscriber, 0, len(clients))
	for c := range clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.Send(payload); err != nil {
			c.Close()
			h.Unregister(deploymentID, c)
		}
	}
}

// Subscribers reports the current subscriber count for a deployment.
func (h *Hub) Subscribers(deploymentID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams[deploymentID])
}
