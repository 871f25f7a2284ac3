package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"

	"github.com/farebid/dispatch/internal/notify"
	"github.com/farebid/dispatch/pkg/logger"
	"github.com/farebid/dispatch/pkg/websocket"
)

// HandleWebSocket handles GET /v1/ws. Clients identify themselves with
// user_id and role query params; after registration any events that
// were queued while they were offline are replayed in order.
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid user_id"})
		return
	}

	role := c.Query("role")
	if role != notify.RoleRider && role != notify.RoleDriver {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be rider or driver"})
		return
	}

	upgrader := gorilla.Upgrader{
		ReadBufferSize:  h.Config.WebSocket.ReadBufferSize,
		WriteBufferSize: h.Config.WebSocket.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins in development
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Error("Failed to upgrade to WebSocket", logger.Err(err))
		return
	}

	client := websocket.NewClient(h.Hub, conn, userID, role, h.Logger)
	h.Hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	// Replay queued events after the write pump is draining the send
	// channel, otherwise the first events could overflow the buffer.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if n := h.Fanout.Replay(ctx, userID); n > 0 {
			h.Logger.Info("Replayed queued events",
				logger.String("user_id", userID.String()),
				logger.Int("events", n),
			)
		}
	}()
}
