package request

import "errors"

var (
	ErrRequestNotFound = errors.New("ride request not found")
	ErrInvalidLocation = errors.New("invalid pickup or destination location")
	ErrRequestNotOpen  = errors.New("ride request is not open for bidding")
	ErrBiddingClosed   = errors.New("bidding window has closed")
	ErrAlreadyMatched  = errors.New("ride request is already matched")
	ErrNotCancellable  = errors.New("ride request can no longer be cancelled")
	ErrNotYourRequest  = errors.New("request belongs to another rider")
)
