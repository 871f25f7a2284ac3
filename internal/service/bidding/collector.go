package bidding

import (
	"context"
	"sync"
	"time"

	"github.com/farebid/dispatch/internal/domain/bid"
	"github.com/farebid/dispatch/internal/domain/request"
	"github.com/farebid/dispatch/internal/events"
	"github.com/farebid/dispatch/internal/notify"
	"github.com/farebid/dispatch/internal/observability"
	"github.com/farebid/dispatch/internal/service/ledger"
	"github.com/farebid/dispatch/pkg/logger"
	"github.com/google/uuid"
)

// Collector accepts and validates driver bids against a request's
// current state. Bids are never ranked or auto-selected; the rider
// chooses through the matcher.
type Collector struct {
	ledger *ledger.Ledger
	fanout *notify.Fanout
	logger *logger.Logger

	mu        sync.RWMutex
	bids      map[uuid.UUID]*bid.Bid
	byRequest map[uuid.UUID][]*bid.Bid
}

// New creates a bid collector bound to the ledger
func New(l *ledger.Ledger, fanout *notify.Fanout, log *logger.Logger) *Collector {
	return &Collector{
		ledger:    l,
		fanout:    fanout,
		logger:    log,
		bids:      make(map[uuid.UUID]*bid.Bid),
		byRequest: make(map[uuid.UUID][]*bid.Bid),
	}
}

// SubmitBid validates and records one driver's offer. The request must
// still be open and inside its bidding window, and a driver gets one
// live bid per request. The rider is notified of every accepted bid.
func (c *Collector) SubmitBid(ctx context.Context, requestID, driverID uuid.UUID, amount float64, message string) (*bid.Bid, error) {
	if amount <= 0 {
		observability.BidsRejected.WithLabelValues("invalid_amount").Inc()
		return nil, bid.ErrInvalidAmount
	}

	var created bid.Bid
	var riderID uuid.UUID
	err := c.ledger.WithRequest(requestID, func(r *request.Request) error {
		if r.Status != request.StatusBiddingOpen {
			observability.BidsRejected.WithLabelValues("not_open").Inc()
			return request.ErrRequestNotOpen
		}
		now := time.Now()
		if !now.Before(r.BiddingDeadline) {
			// Deadline passed but the expiry timer has not fired yet
			observability.BidsRejected.WithLabelValues("closed").Inc()
			return request.ErrBiddingClosed
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		for _, existing := range c.byRequest[requestID] {
			if existing.DriverID == driverID && existing.Status != bid.StatusRejected {
				observability.BidsRejected.WithLabelValues("duplicate").Inc()
				return bid.ErrDuplicateBid
			}
		}

		b := &bid.Bid{
			ID:        uuid.New(),
			RequestID: requestID,
			DriverID:  driverID,
			Amount:    amount,
			Message:   message,
			Status:    bid.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		c.bids[b.ID] = b
		c.byRequest[requestID] = append(c.byRequest[requestID], b)
		created = *b
		riderID = r.RiderID
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.BidsSubmitted.Inc()
	c.logger.Info("Bid submitted",
		logger.String("bid_id", created.ID.String()),
		logger.String("request_id", requestID.String()),
		logger.String("driver_id", driverID.String()),
		logger.Float64("amount", amount),
	)

	c.fanout.Notify(ctx, riderID, events.New(events.TypeBidReceived, events.BidReceived{
		RequestID: requestID,
		BidID:     created.ID,
		DriverID:  driverID,
		Amount:    amount,
		Message:   message,
		CreatedAt: created.CreatedAt,
	}))

	return &created, nil
}

// Get returns a snapshot of one bid
func (c *Collector) Get(bidID uuid.UUID) (*bid.Bid, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.bids[bidID]
	if !ok {
		return nil, bid.ErrBidNotFound
	}
	snapshot := *b
	return &snapshot, nil
}

// BidsFor returns snapshots of all bids on a request, oldest first
func (c *Collector) BidsFor(requestID uuid.UUID) []*bid.Bid {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*bid.Bid, 0, len(c.byRequest[requestID]))
	for _, b := range c.byRequest[requestID] {
		snapshot := *b
		out = append(out, &snapshot)
	}
	return out
}

// Accept marks the chosen bid accepted and every other bid on the
// request rejected. The caller must hold the request's lock through
// ledger.WithRequest; the collector only guards its own maps here.
func (c *Collector) Accept(requestID, bidID uuid.UUID) (*bid.Bid, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chosen, ok := c.bids[bidID]
	if !ok || chosen.RequestID != requestID {
		return nil, bid.ErrBidNotFound
	}
	if !chosen.IsPending() {
		return nil, bid.ErrBidNotPending
	}

	now := time.Now()
	for _, other := range c.byRequest[requestID] {
		if other.ID == bidID {
			continue
		}
		if other.Status == bid.StatusPending {
			other.Status = bid.StatusRejected
			other.UpdatedAt = now
		}
	}
	chosen.Status = bid.StatusAccepted
	chosen.UpdatedAt = now

	snapshot := *chosen
	return &snapshot, nil
}
