package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/farebid/dispatch/internal/archive"
	"github.com/farebid/dispatch/internal/config"
	"github.com/farebid/dispatch/internal/domain/bid"
	"github.com/farebid/dispatch/internal/domain/chat"
	"github.com/farebid/dispatch/internal/domain/request"
	"github.com/farebid/dispatch/internal/domain/ride"
	"github.com/farebid/dispatch/internal/notify"
	"github.com/farebid/dispatch/internal/service/bidding"
	chatsvc "github.com/farebid/dispatch/internal/service/chat"
	"github.com/farebid/dispatch/internal/service/dispatch"
	"github.com/farebid/dispatch/internal/service/ledger"
	apperrors "github.com/farebid/dispatch/pkg/errors"
	"github.com/farebid/dispatch/pkg/logger"
	"github.com/farebid/dispatch/pkg/websocket"
)

// Handlers holds all handler dependencies
type Handlers struct {
	Ledger   *ledger.Ledger
	Bids     *bidding.Collector
	Matcher  *dispatch.Matcher
	Chat     *chatsvc.Service
	Fanout   *notify.Fanout
	Store    *archive.Store
	Presence notify.Presence
	Hub      *websocket.Hub
	Config   *config.Config
	Logger   *logger.Logger
}

// identityFrom reads the caller's identity from the X-User-ID header.
// Authentication proper is handled upstream; the gateway injects this
// header after validating the session.
func identityFrom(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		raw = c.Query("user_id")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid X-User-ID header"})
		return uuid.Nil, false
	}
	return id, true
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps service errors onto HTTP responses. Domain
// sentinels get stable machine-readable codes so clients can branch
// without parsing messages.
func (h *Handlers) respondError(c *gin.Context, err error) {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.Logger.Error("Request failed", logger.Err(err), logger.String("path", c.FullPath()))
	}
	c.JSON(appErr.Status, gin.H{"error": appErr.Message, "code": appErr.Code})
}

func toAppError(err error) *apperrors.AppError {
	switch err {
	case request.ErrRequestNotFound, bid.ErrBidNotFound, ride.ErrRideNotFound, chat.ErrChannelNotFound:
		return apperrors.NotFound(err.Error(), err)
	case request.ErrInvalidLocation, bid.ErrInvalidAmount, chat.ErrEmptyMessage:
		return apperrors.BadRequest(err.Error(), err)
	case request.ErrNotYourRequest, ride.ErrNotDriver, ride.ErrNotParticipant, chat.ErrNotAParticipant:
		return apperrors.Forbidden(err.Error(), err)
	case request.ErrRequestNotOpen:
		return apperrors.NewAppError("REQUEST_NOT_OPEN", err.Error(), http.StatusConflict, err)
	case request.ErrBiddingClosed:
		return apperrors.NewAppError("BIDDING_CLOSED", err.Error(), http.StatusConflict, err)
	case request.ErrAlreadyMatched:
		return apperrors.NewAppError("ALREADY_MATCHED", err.Error(), http.StatusConflict, err)
	case request.ErrNotCancellable:
		return apperrors.NewAppError("NOT_CANCELLABLE", err.Error(), http.StatusConflict, err)
	case bid.ErrDuplicateBid:
		return apperrors.NewAppError("DUPLICATE_BID", err.Error(), http.StatusConflict, err)
	case bid.ErrBidNotPending:
		return apperrors.NewAppError("BID_NOT_PENDING", err.Error(), http.StatusConflict, err)
	case ride.ErrCodeMismatch:
		return apperrors.NewAppError("CODE_MISMATCH", err.Error(), http.StatusBadRequest, err)
	case ride.ErrNeedsSupport:
		return apperrors.NewAppError("NEEDS_SUPPORT", err.Error(), http.StatusConflict, err)
	case ride.ErrNotMatched:
		return apperrors.NewAppError("NOT_MATCHED", err.Error(), http.StatusConflict, err)
	case ride.ErrNotInProgress:
		return apperrors.NewAppError("NOT_IN_PROGRESS", err.Error(), http.StatusConflict, err)
	case chat.ErrChannelClosed:
		return apperrors.NewAppError("CHANNEL_CLOSED", err.Error(), http.StatusConflict, err)
	}
	if apperrors.IsAppError(err) {
		return apperrors.GetAppError(err)
	}
	return apperrors.Internal("Internal server error", err)
}
