package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/farebid/dispatch/internal/api/dto"
	"github.com/farebid/dispatch/pkg/logger"
)

// CreateRequest handles POST /v1/requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	riderID, ok := identityFrom(c)
	if !ok {
		return
	}

	var req dto.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	r, err := h.Ledger.Submit(c.Request.Context(), riderID, req.Pickup.ToDomain(), req.Destination.ToDomain())
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.Logger.Info("Ride request opened",
		logger.String("request_id", r.ID.String()),
		logger.String("rider_id", riderID.String()),
	)

	c.JSON(http.StatusCreated, gin.H{
		"request":          r,
		"bidding_deadline": r.BiddingDeadline,
	})
}

// GetRequest handles GET /v1/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	requestID, ok := pathID(c, "id")
	if !ok {
		return
	}

	r, err := h.Ledger.Get(requestID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request": r,
		"bids":    h.Bids.BidsFor(requestID),
	})
}

// OpenRequests handles GET /v1/requests/open. Drivers poll this as a
// fallback when they connect after requests were broadcast.
func (h *Handlers) OpenRequests(c *gin.Context) {
	open := h.Ledger.OpenRequests()
	c.JSON(http.StatusOK, gin.H{
		"requests": open,
		"count":    len(open),
	})
}

// CancelRequest handles POST /v1/requests/:id/cancel
func (h *Handlers) CancelRequest(c *gin.Context) {
	callerID, ok := identityFrom(c)
	if !ok {
		return
	}
	requestID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.Matcher.CancelRequest(c.Request.Context(), requestID, callerID); err != nil {
		h.respondError(c, err)
		return
	}

	h.Logger.Info("Ride request cancelled",
		logger.String("request_id", requestID.String()),
		logger.String("cancelled_by", callerID.String()),
	)

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}
