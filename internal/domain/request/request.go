package request

import (
	"time"

	"github.com/google/uuid"
)

// Status represents ride request status
type Status string

const (
	StatusRequested   Status = "requested"
	StatusBiddingOpen Status = "bidding_open"
	StatusMatched     Status = "matched"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusExpired     Status = "expired"
)

// Location is a geographic point with a display address
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

// Validate checks coordinate ranges and that the location is actually set
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return ErrInvalidLocation
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return ErrInvalidLocation
	}
	if l.Latitude == 0 && l.Longitude == 0 {
		return ErrInvalidLocation
	}
	if l.Address == "" {
		return ErrInvalidLocation
	}
	return nil
}

// Request represents one rider's open ask for transportation
type Request struct {
	ID              uuid.UUID  `json:"id"`
	RiderID         uuid.UUID  `json:"rider_id"`
	Pickup          Location   `json:"pickup"`
	Destination     Location   `json:"destination"`
	Status          Status     `json:"status"`
	BiddingDeadline time.Time  `json:"bidding_deadline"`
	RequestedAt     time.Time  `json:"requested_at"`
	MatchedAt       *time.Time `json:"matched_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy     *uuid.UUID `json:"cancelled_by,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the request can never change state again
func (r *Request) IsTerminal() bool {
	switch r.Status {
	case StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// CanCancel reports whether cancellation is still allowed
func (r *Request) CanCancel() bool {
	switch r.Status {
	case StatusRequested, StatusBiddingOpen, StatusMatched:
		return true
	}
	return false
}

// BiddingOpen reports whether this request is accepting bids right now
func (r *Request) BiddingOpen(now time.Time) bool {
	return r.Status == StatusBiddingOpen && now.Before(r.BiddingDeadline)
}
