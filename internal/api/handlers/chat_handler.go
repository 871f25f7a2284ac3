package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/farebid/dispatch/internal/api/dto"
	"github.com/farebid/dispatch/pkg/logger"
)

// SendMessage handles POST /v1/chats/:id/messages. The chat channel ID
// is the ride ID; a channel opens on match and closes when the ride
// ends.
func (h *Handlers) SendMessage(c *gin.Context) {
	senderID, ok := identityFrom(c)
	if !ok {
		return
	}
	channelID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	msg, err := h.Chat.Send(c.Request.Context(), channelID, senderID, req.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// AckRead handles POST /v1/chats/:id/read
func (h *Handlers) AckRead(c *gin.Context) {
	readerID, ok := identityFrom(c)
	if !ok {
		return
	}
	channelID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.AckReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	if err := h.Chat.AcknowledgeRead(channelID, readerID, req.UpToSequence); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
}

// ChatHistory handles GET /v1/chats/:id/messages
func (h *Handlers) ChatHistory(c *gin.Context) {
	callerID, ok := identityFrom(c)
	if !ok {
		return
	}
	channelID, ok := pathID(c, "id")
	if !ok {
		return
	}

	msgs, err := h.Chat.History(channelID, callerID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": msgs,
		"count":    len(msgs),
	})
}

// ChatReplay handles GET /v1/chats/:id/replay. Returns the caller's
// unacknowledged inbound messages in sequence order and marks them
// delivered, so a reconnecting client catches up without gaps.
func (h *Handlers) ChatReplay(c *gin.Context) {
	callerID, ok := identityFrom(c)
	if !ok {
		return
	}
	channelID, ok := pathID(c, "id")
	if !ok {
		return
	}

	msgs, err := h.Chat.Replay(channelID, callerID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.Logger.Debug("Chat replay served",
		logger.String("channel_id", channelID.String()),
		logger.String("participant_id", callerID.String()),
		logger.Int("messages", len(msgs)),
	)

	c.JSON(http.StatusOK, gin.H{
		"messages": msgs,
		"count":    len(msgs),
	})
}
