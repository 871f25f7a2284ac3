package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/farebid/dispatch/internal/domain/bid"
	"github.com/farebid/dispatch/internal/domain/chat"
	"github.com/farebid/dispatch/internal/domain/request"
	"github.com/farebid/dispatch/internal/domain/ride"
	apperrors "github.com/farebid/dispatch/pkg/errors"
)

// TestToAppError_DomainSentinels tests that every rejected transition
// maps to its own stable code and status, never the generic 500
func TestToAppError_DomainSentinels(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{request.ErrRequestNotFound, "NOT_FOUND", http.StatusNotFound},
		{bid.ErrBidNotFound, "NOT_FOUND", http.StatusNotFound},
		{ride.ErrRideNotFound, "NOT_FOUND", http.StatusNotFound},
		{chat.ErrChannelNotFound, "NOT_FOUND", http.StatusNotFound},
		{request.ErrInvalidLocation, "BAD_REQUEST", http.StatusBadRequest},
		{bid.ErrInvalidAmount, "BAD_REQUEST", http.StatusBadRequest},
		{chat.ErrEmptyMessage, "BAD_REQUEST", http.StatusBadRequest},
		{request.ErrNotYourRequest, "FORBIDDEN", http.StatusForbidden},
		{ride.ErrNotDriver, "FORBIDDEN", http.StatusForbidden},
		{ride.ErrNotParticipant, "FORBIDDEN", http.StatusForbidden},
		{chat.ErrNotAParticipant, "FORBIDDEN", http.StatusForbidden},
		{request.ErrRequestNotOpen, "REQUEST_NOT_OPEN", http.StatusConflict},
		{request.ErrBiddingClosed, "BIDDING_CLOSED", http.StatusConflict},
		{request.ErrAlreadyMatched, "ALREADY_MATCHED", http.StatusConflict},
		{request.ErrNotCancellable, "NOT_CANCELLABLE", http.StatusConflict},
		{bid.ErrDuplicateBid, "DUPLICATE_BID", http.StatusConflict},
		{bid.ErrBidNotPending, "BID_NOT_PENDING", http.StatusConflict},
		{ride.ErrCodeMismatch, "CODE_MISMATCH", http.StatusBadRequest},
		{ride.ErrNeedsSupport, "NEEDS_SUPPORT", http.StatusConflict},
		{ride.ErrNotMatched, "NOT_MATCHED", http.StatusConflict},
		{ride.ErrNotInProgress, "NOT_IN_PROGRESS", http.StatusConflict},
		{chat.ErrChannelClosed, "CHANNEL_CLOSED", http.StatusConflict},
	}
	for _, tc := range cases {
		appErr := toAppError(tc.err)
		assert.Equal(t, tc.code, appErr.Code, "%v", tc.err)
		assert.Equal(t, tc.status, appErr.Status, "%v", tc.err)
	}
}

// TestToAppError_PassesAppErrorsThrough tests that a pre-built AppError
// keeps its code and status
func TestToAppError_PassesAppErrorsThrough(t *testing.T) {
	orig := apperrors.Conflict("already settled", nil)
	assert.Same(t, orig, toAppError(orig))
}

// TestToAppError_UnknownIsInternal tests that unrecognized errors fall
// back to a 500 without leaking details in the code
func TestToAppError_UnknownIsInternal(t *testing.T) {
	appErr := toAppError(errors.New("connection refused"))
	assert.Equal(t, "INTERNAL_ERROR", appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
}
