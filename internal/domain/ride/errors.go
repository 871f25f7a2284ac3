package ride

import "errors"

var (
	ErrRideNotFound   = errors.New("active ride not found")
	ErrCodeMismatch   = errors.New("pickup code does not match")
	ErrNeedsSupport   = errors.New("ride requires operator support")
	ErrNotMatched     = errors.New("ride is not awaiting pickup verification")
	ErrNotInProgress  = errors.New("ride is not in progress")
	ErrNotDriver      = errors.New("only the matched driver may verify the pickup code")
	ErrNotParticipant = errors.New("identity is not part of this ride")
)
