package server

import (
	"sync"

	"vox-chat/internal/observability"
)

// Hub maintains the set of active clients and hands outbound frames to them.
// It implements realtime.Sender.
type Hub struct {
	clients map[string]*Client
	metrics *observability.Metrics
	logger  *WebSocketLogger
	mu      sync.RWMutex
}

// NewHub creates a new Hub
func NewHub(metrics *observability.Metrics, logger *WebSocketLogger) *Hub {
	if logger == nil {
		logger = NewWebSocketLogger(nil)
	}
	return &Hub{
		clients: make(map[string]*Client),
		metrics: metrics,
		logger:  logger,
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.connID] = client
	h.logger.Info("client connected", client.connID, client.remoteAddr)
}

// unregister removes the client and closes its send channel. It reports
// false if the client was already gone.
func (h *Hub) unregister(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.clients[client.connID]; !ok || cur != client {
		return false
	}
	delete(h.clients, client.connID)
	close(client.send)
	h.logger.Info("client disconnected", client.connID, client.remoteAddr)
	return true
}

// Send queues frame for connID without blocking. Frames for unknown
// connections are ignored; a full buffer drops the frame.
func (h *Hub) Send(connID string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}
	select {
	case client.send <- frame:
	default:
		h.metrics.FrameDropped()
		h.logger.Warn("client send buffer full", client.connID, client.remoteAddr)
	}
}

// Len returns the number of registered clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop closes every client connection. Read pumps then unregister their
// clients through the normal disconnect path.
func (h *Hub) Stop() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		client.conn.Close()
	}
}
