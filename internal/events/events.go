package events

import (
	"encoding/json"
	"time"

	"github.com/farebid/dispatch/internal/domain/request"
	"github.com/google/uuid"
)

// Type tags every event pushed over the real-time surface. The set is
// closed: each type has exactly one payload shape below.
type Type string

const (
	TypeRequestOpen    Type = "ride.request.open"
	TypeRequestExpired Type = "ride.request.expired"
	TypeRequestClosed  Type = "ride.request.closed"
	TypeBidReceived    Type = "ride.bid.received"
	TypeMatched        Type = "ride.matched"
	TypeStarted        Type = "ride.started"
	TypeCompleted      Type = "ride.completed"
	TypeCancelled      Type = "ride.cancelled"
	TypeNeedsSupport   Type = "ride.needs_support"
	TypeChatMessage    Type = "chat.message"
	TypeChatDelivered  Type = "chat.delivered"
)

// Envelope is the wire form of every push: a tag plus a fixed payload
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// New builds an envelope from a typed payload. Marshal failures cannot
// happen for the payload structs in this package, so they panic.
func New(t Type, payload interface{}) Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic("events: unmarshalable payload: " + err.Error())
	}
	return Envelope{Type: t, Payload: raw}
}

// Encode renders the envelope for transport
func (e Envelope) Encode() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		panic("events: unmarshalable envelope: " + err.Error())
	}
	return data
}

// Decode parses a wire envelope
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(data, &e)
	return e, err
}

// RequestOpen announces a new biddable request to online drivers
type RequestOpen struct {
	RequestID   uuid.UUID        `json:"request_id"`
	RiderID     uuid.UUID        `json:"rider_id"`
	Pickup      request.Location `json:"pickup"`
	Destination request.Location `json:"destination"`
	Deadline    time.Time        `json:"bidding_deadline"`
}

// RequestExpired tells the rider their bidding window lapsed with no match
type RequestExpired struct {
	RequestID uuid.UUID `json:"request_id"`
}

// RequestClosed tells drivers a request left the open pool
type RequestClosed struct {
	RequestID uuid.UUID `json:"request_id"`
	Reason    string    `json:"reason"`
}

// BidReceived is the rider-facing summary of a new pending bid
type BidReceived struct {
	RequestID uuid.UUID `json:"request_id"`
	BidID     uuid.UUID `json:"bid_id"`
	DriverID  uuid.UUID `json:"driver_id"`
	Amount    float64   `json:"amount"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Matched goes to both parties on a successful accept. PickupCode is
// populated only on the rider's copy.
type Matched struct {
	RideID     uuid.UUID `json:"ride_id"`
	RequestID  uuid.UUID `json:"request_id"`
	RiderID    uuid.UUID `json:"rider_id"`
	DriverID   uuid.UUID `json:"driver_id"`
	Fare       float64   `json:"fare"`
	ChannelID  uuid.UUID `json:"channel_id"`
	PickupCode string    `json:"pickup_code,omitempty"`
}

// Started signals pickup-code verification succeeded
type Started struct {
	RideID uuid.UUID `json:"ride_id"`
}

// Completed signals the ride finished
type Completed struct {
	RideID uuid.UUID `json:"ride_id"`
	Fare   float64   `json:"fare"`
}

// Cancelled signals a request or ride was cancelled
type Cancelled struct {
	RequestID   uuid.UUID  `json:"request_id"`
	RideID      *uuid.UUID `json:"ride_id,omitempty"`
	CancelledBy uuid.UUID  `json:"cancelled_by"`
}

// NeedsSupport flags a ride for operator intervention after repeated
// pickup-code failures
type NeedsSupport struct {
	RideID   uuid.UUID `json:"ride_id"`
	Attempts int       `json:"attempts"`
}

// ChatMessage is the recipient-facing push of one chat message
type ChatMessage struct {
	ChannelID uuid.UUID `json:"channel_id"`
	MessageID uuid.UUID `json:"message_id"`
	Sequence  uint64    `json:"sequence"`
	SenderID  uuid.UUID `json:"sender_id"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sent_at"`
}

// ChatDelivered tells a sender their message reached the counterpart
type ChatDelivered struct {
	ChannelID uuid.UUID `json:"channel_id"`
	MessageID uuid.UUID `json:"message_id"`
	Sequence  uint64    `json:"sequence"`
}
