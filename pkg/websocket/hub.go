package websocket

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ridebench/dispatchsim/pkg/logger"
)

// Hub maintains the set of connected feed viewers and fans every message
// out to all of them. Viewers are anonymous; there is no per-client routing.
type Hub struct {
	clients map[string]*Client

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// Broadcast queues messages for all connected clients
	Broadcast chan *Message

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan *Message, 256),
	}
}

// Run starts the hub's main loop. It returns when ctx is done, closing all
// client channels.
func (h *Hub) Run(ctx context.Context) {
	logger.Info("live feed hub started")
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case message := <-h.Broadcast:
			h.broadcastMessage(message)

		case <-ctx.Done():
			h.closeAll()
			logger.Info("live feed hub stopped")
			return
		}
	}
}

// registerClient adds a client to the hub
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Replace any stale client with the same ID
	if existing, ok := h.clients[client.ID]; ok {
		close(existing.Send)
	}

	h.clients[client.ID] = client
	logger.Debug("feed client registered", zap.String("client_id", client.ID))
}

// unregisterClient removes a client from the hub
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
		logger.Debug("feed client unregistered", zap.String("client_id", client.ID))
	}
}

// broadcastMessage sends a message to every connected client
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		client.SendMessage(message)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.Send)
		delete(h.clients, id)
	}
}

// SendToAll broadcasts a message to all connected clients without blocking
// the caller. Messages are dropped when the broadcast queue is full.
func (h *Hub) SendToAll(msg *Message) {
	select {
	case h.Broadcast <- msg:
	default:
		logger.Warn("live feed broadcast queue full, dropping message",
			zap.String("type", msg.Type))
	}
}

// GetClient returns a client by ID
func (h *Hub) GetClient(clientID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[clientID]
	return client, ok
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
