package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/farebid/dispatch/internal/api/dto"
	"github.com/farebid/dispatch/pkg/logger"
)

// SubmitBid handles POST /v1/requests/:id/bids
func (h *Handlers) SubmitBid(c *gin.Context) {
	driverID, ok := identityFrom(c)
	if !ok {
		return
	}
	requestID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.SubmitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	b, err := h.Bids.SubmitBid(c.Request.Context(), requestID, driverID, req.Amount, req.Message)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.Logger.Info("Bid submitted",
		logger.String("bid_id", b.ID.String()),
		logger.String("request_id", requestID.String()),
		logger.String("driver_id", driverID.String()),
		logger.Float64("amount", b.Amount),
	)

	c.JSON(http.StatusCreated, gin.H{"bid": b})
}

// ListBids handles GET /v1/requests/:id/bids
func (h *Handlers) ListBids(c *gin.Context) {
	requestID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if _, err := h.Ledger.Get(requestID); err != nil {
		h.respondError(c, err)
		return
	}

	bids := h.Bids.BidsFor(requestID)
	c.JSON(http.StatusOK, gin.H{
		"bids":  bids,
		"count": len(bids),
	})
}

// AcceptBid handles POST /v1/requests/:id/accept
func (h *Handlers) AcceptBid(c *gin.Context) {
	riderID, ok := identityFrom(c)
	if !ok {
		return
	}
	requestID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.AcceptBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	r, err := h.Matcher.AcceptBid(c.Request.Context(), requestID, req.BidID, riderID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.Logger.Info("Bid accepted",
		logger.String("ride_id", r.ID.String()),
		logger.String("request_id", requestID.String()),
		logger.String("driver_id", r.DriverID.String()),
	)

	c.JSON(http.StatusOK, gin.H{"ride": r})
}
