package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/farebid/dispatch/internal/api/dto"
	"github.com/farebid/dispatch/internal/domain/ride"
	"github.com/farebid/dispatch/pkg/logger"
)

// GetRide handles GET /v1/rides/:id
func (h *Handlers) GetRide(c *gin.Context) {
	callerID, ok := identityFrom(c)
	if !ok {
		return
	}
	rideID, ok := pathID(c, "id")
	if !ok {
		return
	}

	r, err := h.Matcher.Ride(rideID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !r.Participant(callerID) {
		h.respondError(c, ride.ErrNotParticipant)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ride": r})
}

// VerifyCode handles POST /v1/rides/:id/verify-code. Only the assigned
// driver may call it; the rider reads the code out at pickup.
func (h *Handlers) VerifyCode(c *gin.Context) {
	driverID, ok := identityFrom(c)
	if !ok {
		return
	}
	rideID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	err := h.Matcher.VerifyPickupCode(c.Request.Context(), rideID, driverID, req.Code)
	if err == ride.ErrCodeMismatch {
		remaining := 0
		if r, rerr := h.Matcher.Ride(rideID); rerr == nil {
			remaining = h.Config.Dispatch.CodeMaxAttempts - r.CodeAttempts
			if remaining < 0 {
				remaining = 0
			}
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":              "Pickup code does not match",
			"code":               "CODE_MISMATCH",
			"attempts_remaining": remaining,
		})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.Logger.Info("Pickup code verified, ride started",
		logger.String("ride_id", rideID.String()),
		logger.String("driver_id", driverID.String()),
	)

	c.JSON(http.StatusOK, gin.H{"status": "in_progress"})
}

// CompleteRide handles POST /v1/rides/:id/complete
func (h *Handlers) CompleteRide(c *gin.Context) {
	callerID, ok := identityFrom(c)
	if !ok {
		return
	}
	rideID, ok := pathID(c, "id")
	if !ok {
		return
	}

	r, err := h.Matcher.CompleteRide(c.Request.Context(), rideID, callerID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.Logger.Info("Ride completed",
		logger.String("ride_id", rideID.String()),
		logger.String("completed_by", callerID.String()),
	)

	c.JSON(http.StatusOK, gin.H{"ride": r})
}

// RideHistory handles GET /v1/history
func (h *Handlers) RideHistory(c *gin.Context) {
	callerID, ok := identityFrom(c)
	if !ok {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	records, err := h.Store.RideHistory(c.Request.Context(), callerID, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rides": records,
		"count": len(records),
	})
}

// NeedsSupport handles GET /v1/admin/rides/needs-support. Escalated
// rides stay here until an operator resolves them out of band.
func (h *Handlers) NeedsSupport(c *gin.Context) {
	rides := h.Matcher.NeedsSupport()
	c.JSON(http.StatusOK, gin.H{
		"rides": rides,
		"count": len(rides),
	})
}
