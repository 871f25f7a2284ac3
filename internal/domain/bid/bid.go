package bid

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle of a driver bid
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Bid represents a driver's priced offer against a ride request
type Bid struct {
	ID        uuid.UUID `json:"id"`
	RequestID uuid.UUID `json:"request_id"`
	DriverID  uuid.UUID `json:"driver_id"`
	Amount    float64   `json:"amount"`
	Message   string    `json:"message,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPending reports whether the bid can still be accepted
func (b *Bid) IsPending() bool {
	return b.Status == StatusPending
}
