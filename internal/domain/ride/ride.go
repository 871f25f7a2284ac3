package ride

import (
	"time"

	"github.com/google/uuid"
)

// Status represents active ride status
type Status string

const (
	StatusMatched      Status = "matched"
	StatusInProgress   Status = "in_progress"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
	StatusNeedsSupport Status = "needs_support"
)

// Ride represents a committed match between one rider and one driver.
// It is created atomically when a bid is accepted and carries the
// pickup code the driver must present at pickup.
type Ride struct {
	ID           uuid.UUID  `json:"id"`
	RequestID    uuid.UUID  `json:"request_id"`
	BidID        uuid.UUID  `json:"bid_id"`
	RiderID      uuid.UUID  `json:"rider_id"`
	DriverID     uuid.UUID  `json:"driver_id"`
	Fare         float64    `json:"fare"`
	PickupCode   string     `json:"-"`
	CodeAttempts int        `json:"code_attempts"`
	Status       Status     `json:"status"`
	MatchedAt    time.Time  `json:"matched_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the ride reached a final state.
// NeedsSupport is terminal for the automated flow; only operator
// tooling can move it from there.
func (r *Ride) IsTerminal() bool {
	switch r.Status {
	case StatusCompleted, StatusCancelled, StatusNeedsSupport:
		return true
	}
	return false
}

// CanVerifyCode reports whether pickup-code verification is still allowed
func (r *Ride) CanVerifyCode() bool {
	return r.Status == StatusMatched
}

// CanComplete reports whether the ride can be completed
func (r *Ride) CanComplete() bool {
	return r.Status == StatusInProgress
}

// CanCancel reports whether the ride can still be cancelled
func (r *Ride) CanCancel() bool {
	return r.Status == StatusMatched
}

// Participant reports whether id is one of the two matched parties
func (r *Ride) Participant(id uuid.UUID) bool {
	return id == r.RiderID || id == r.DriverID
}
