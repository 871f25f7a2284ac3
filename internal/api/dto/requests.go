package dto

import (
	"github.com/google/uuid"

	"github.com/farebid/dispatch/internal/domain/request"
)

// CreateRequestRequest is the body for opening a ride request.
type CreateRequestRequest struct {
	Pickup      LocationDTO `json:"pickup" binding:"required"`
	Destination LocationDTO `json:"destination" binding:"required"`
}

type LocationDTO struct {
	Latitude  float64 `json:"latitude" binding:"required"`
	Longitude float64 `json:"longitude" binding:"required"`
	Address   string  `json:"address" binding:"required"`
}

func (l LocationDTO) ToDomain() request.Location {
	return request.Location{
		Latitude:  l.Latitude,
		Longitude: l.Longitude,
		Address:   l.Address,
	}
}

// SubmitBidRequest is the body for a driver's offer on an open request.
type SubmitBidRequest struct {
	Amount  float64 `json:"amount" binding:"required,gt=0"`
	Message string  `json:"message" binding:"max=280"`
}

// AcceptBidRequest names the bid the rider is accepting.
type AcceptBidRequest struct {
	BidID uuid.UUID `json:"bid_id" binding:"required"`
}

// VerifyCodeRequest carries the pickup code the driver read back.
type VerifyCodeRequest struct {
	Code string `json:"code" binding:"required,min=4,max=8,numeric"`
}

// SendMessageRequest is the body for posting a chat message.
type SendMessageRequest struct {
	Content string `json:"content" binding:"required,max=2000"`
}

// AckReadRequest marks everything up to a sequence as read.
type AckReadRequest struct {
	UpToSequence uint64 `json:"up_to_sequence" binding:"required"`
}

// DriverStatusRequest toggles a driver's availability.
type DriverStatusRequest struct {
	Online bool `json:"online"`
}
