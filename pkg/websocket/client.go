package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/farebid/dispatch/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Client represents one live transport session for an identity
type Client struct {
	ID         uuid.UUID
	IdentityID uuid.UUID
	Role       string // "rider" or "driver"
	Hub        *Hub
	Conn       *websocket.Conn
	Send       chan []byte

	mu            sync.RWMutex
	lastHeartbeat time.Time

	logger *logger.Logger
}

// NewClient creates a new client session
func NewClient(hub *Hub, conn *websocket.Conn, identityID uuid.UUID, role string, log *logger.Logger) *Client {
	return &Client{
		ID:            uuid.New(),
		IdentityID:    identityID,
		Role:          role,
		Hub:           hub,
		Conn:          conn,
		Send:          make(chan []byte, 256),
		lastHeartbeat: time.Now(),
		logger:        log,
	}
}

// LastHeartbeat returns the time of the last pong from this client
func (c *Client) LastHeartbeat() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastHeartbeat
}

func (c *Client) touchHeartbeat() {
	c.mu.Lock()
	c.lastHeartbeat = time.Now()
	c.mu.Unlock()
}

// ReadPump pumps inbound frames from the connection. All ride and chat
// operations arrive over the HTTP API; the socket only carries
// heartbeats inbound.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.touchHeartbeat()
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error",
					logger.Err(err),
					logger.String("client_id", c.ID.String()),
				)
			}
			break
		}

		c.handleMessage(message)
	}
}

// WritePump pumps queued pushes to the connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type inboundFrame struct {
	Type string `json:"type"`
}

func (c *Client) handleMessage(message []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		c.logger.Warn("Malformed inbound frame",
			logger.Err(err),
			logger.String("client_id", c.ID.String()),
		)
		return
	}

	switch frame.Type {
	case "ping":
		c.touchHeartbeat()
		select {
		case c.Send <- []byte(`{"type":"pong"}`):
		default:
		}
	default:
		c.logger.Warn("Unknown inbound frame type",
			logger.String("type", frame.Type),
			logger.String("client_id", c.ID.String()),
		)
	}
}
