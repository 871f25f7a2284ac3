package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/farebid/dispatch/internal/api/dto"
	"github.com/farebid/dispatch/pkg/logger"
)

// SetDriverStatus handles POST /v1/drivers/status. Only online drivers
// receive new-request broadcasts.
func (h *Handlers) SetDriverStatus(c *gin.Context) {
	driverID, ok := identityFrom(c)
	if !ok {
		return
	}

	var req dto.DriverStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	if err := h.Presence.SetOnline(c.Request.Context(), driverID, req.Online); err != nil {
		h.respondError(c, err)
		return
	}

	h.Logger.Info("Driver status updated",
		logger.String("driver_id", driverID.String()),
		logger.Bool("online", req.Online),
	)

	status := "offline"
	if req.Online {
		status = "online"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
