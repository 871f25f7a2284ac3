package chat

import (
	"time"

	"github.com/google/uuid"
)

// MessageState tracks delivery progress of a single message
type MessageState string

const (
	StateSent      MessageState = "sent"
	StateDelivered MessageState = "delivered"
	StateRead      MessageState = "read"
)

// Channel is the ordered message stream bound to one active ride.
// The channel id equals the active ride id.
type Channel struct {
	ID       uuid.UUID  `json:"id"`
	RiderID  uuid.UUID  `json:"rider_id"`
	DriverID uuid.UUID  `json:"driver_id"`
	OpenedAt time.Time  `json:"opened_at"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

// Participant reports whether id may read or write this channel
func (c *Channel) Participant(id uuid.UUID) bool {
	return id == c.RiderID || id == c.DriverID
}

// Counterpart returns the other participant
func (c *Channel) Counterpart(id uuid.UUID) uuid.UUID {
	if id == c.RiderID {
		return c.DriverID
	}
	return c.RiderID
}

// Message is one chat message. Content is immutable after creation;
// only State may change, and only forward (sent -> delivered -> read).
type Message struct {
	ID        uuid.UUID    `json:"id"`
	ChannelID uuid.UUID    `json:"channel_id"`
	SenderID  uuid.UUID    `json:"sender_id"`
	Sequence  uint64       `json:"sequence"`
	Body      string       `json:"body"`
	State     MessageState `json:"state"`
	SentAt    time.Time    `json:"sent_at"`
}
