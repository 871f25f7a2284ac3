package bid

import "errors"

var (
	ErrBidNotFound   = errors.New("bid not found")
	ErrDuplicateBid  = errors.New("driver already has an active bid on this request")
	ErrBidNotPending = errors.New("bid is no longer pending")
	ErrInvalidAmount = errors.New("bid amount must be positive")
)
