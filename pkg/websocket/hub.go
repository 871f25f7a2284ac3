package websocket

import (
	"sync"

	"github.com/farebid/dispatch/pkg/logger"
	"github.com/google/uuid"
)

// Hub tracks live client connections keyed by identity. It implements
// the connection registry the fanout layer is built on: Deliver,
// IsConnected and ConnectedByRole. One identity may hold several
// connections (phone plus web); a push goes to all of them.
type Hub struct {
	clients    map[uuid.UUID]map[*Client]bool
	unregister chan *Client
	mu         sync.RWMutex
	logger     *logger.Logger
}

// NewHub creates a new connection hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		unregister: make(chan *Client, 16),
		logger:     log,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for client := range h.unregister {
		h.mu.Lock()
		if conns, ok := h.clients[client.IdentityID]; ok {
			if _, ok := conns[client]; ok {
				delete(conns, client)
				close(client.Send)
				if len(conns) == 0 {
					delete(h.clients, client.IdentityID)
				}
				h.logger.Info("Client unregistered",
					logger.String("client_id", client.ID.String()),
					logger.String("identity_id", client.IdentityID.String()),
				)
			}
		}
		h.mu.Unlock()
	}
}

// Register registers a new client. Registration completes before
// Register returns, so the caller can replay queued events right away
// and they reach the fresh connection.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	conns := h.clients[client.IdentityID]
	if conns == nil {
		conns = make(map[*Client]bool)
		h.clients[client.IdentityID] = conns
	}
	conns[client] = true
	h.mu.Unlock()

	h.logger.Info("Client registered",
		logger.String("client_id", client.ID.String()),
		logger.String("identity_id", client.IdentityID.String()),
		logger.String("role", client.Role),
	)
}

// Unregister unregisters a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Deliver pushes raw bytes to every live connection of the identity.
// A full send buffer counts as undelivered for that connection. Never
// blocks.
func (h *Hub) Deliver(identityID uuid.UUID, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := false
	for client := range h.clients[identityID] {
		select {
		case client.Send <- data:
			delivered = true
		default:
			h.logger.Warn("Client send buffer full, dropping push",
				logger.String("client_id", client.ID.String()),
				logger.String("identity_id", identityID.String()),
			)
		}
	}
	return delivered
}

// IsConnected reports whether the identity has any live connection
func (h *Hub) IsConnected(identityID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[identityID]) > 0
}

// ConnectedByRole returns identities of the role with a live connection
func (h *Hub) ConnectedByRole(role string) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var ids []uuid.UUID
	for identityID, conns := range h.clients {
		for client := range conns {
			if client.Role == role {
				ids = append(ids, identityID)
				break
			}
		}
	}
	return ids
}

// ConnectionCount returns the number of live connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.clients {
		count += len(conns)
	}
	return count
}
