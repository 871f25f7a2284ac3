package dispatch

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/farebid/dispatch/internal/domain/chat"
	"github.com/farebid/dispatch/internal/domain/request"
	"github.com/farebid/dispatch/internal/domain/ride"
	"github.com/farebid/dispatch/internal/events"
	"github.com/farebid/dispatch/internal/notify"
	"github.com/farebid/dispatch/internal/observability"
	"github.com/farebid/dispatch/internal/service/bidding"
	chatsvc "github.com/farebid/dispatch/internal/service/chat"
	"github.com/farebid/dispatch/internal/service/ledger"
	"github.com/farebid/dispatch/pkg/logger"
	"github.com/farebid/dispatch/pkg/monitoring"
	"github.com/google/uuid"
)

// Archiver receives terminal records for the read-only dashboards.
// Implementations must not block the caller; failures are their own to
// log and retry.
type Archiver interface {
	ArchiveRequest(ctx context.Context, r *request.Request)
	ArchiveRide(ctx context.Context, r *ride.Ride)
	ArchiveMessages(ctx context.Context, msgs []*chat.Message)
}

// Settler triggers fare settlement against the external payment
// provider: hold on match, capture on completion, release on cancel.
type Settler interface {
	Hold(ctx context.Context, r *ride.Ride) error
	Capture(ctx context.Context, rideID uuid.UUID) error
	Release(ctx context.Context, rideID uuid.UUID) error
}

// Config holds matcher configuration
type Config struct {
	// CodeLength is the pickup code length in decimal digits
	CodeLength int
	// CodeMaxAttempts is how many mismatches escalate the ride to
	// operator support
	CodeMaxAttempts int
}

// Matcher performs the exclusive accept-one-bid transition, issues and
// verifies pickup codes, and drives rides to their terminal states. It
// is the only component that commits match and cancel transitions to
// the ledger, always under the owning request's lock.
type Matcher struct {
	cfg       Config
	ledger    *ledger.Ledger
	collector *bidding.Collector
	chat      *chatsvc.Service
	fanout    *notify.Fanout
	archive   Archiver
	settler   Settler
	codes     *CodeGenerator
	monitor   *monitoring.NewRelicApp
	logger    *logger.Logger

	mu        sync.RWMutex
	rides     map[uuid.UUID]*ride.Ride
	byRequest map[uuid.UUID]uuid.UUID
}

// New creates a matcher. monitor may be nil when APM is disabled.
func New(cfg Config, l *ledger.Ledger, c *bidding.Collector, ch *chatsvc.Service, fanout *notify.Fanout, archive Archiver, settler Settler, monitor *monitoring.NewRelicApp, log *logger.Logger) *Matcher {
	if cfg.CodeMaxAttempts <= 0 {
		cfg.CodeMaxAttempts = 3
	}
	return &Matcher{
		cfg:       cfg,
		ledger:    l,
		collector: c,
		chat:      ch,
		fanout:    fanout,
		archive:   archive,
		settler:   settler,
		codes:     NewCodeGenerator(cfg.CodeLength),
		monitor:   monitor,
		logger:    log,
		rides:     make(map[uuid.UUID]*ride.Ride),
		byRequest: make(map[uuid.UUID]uuid.UUID),
	}
}

// AcceptBid commits the exclusive match. Under the request's lock it
// transitions the request to Matched, accepts the chosen bid, rejects
// every other bid, creates the active ride with a fresh pickup code and
// opens the chat channel. Of N racing accepts exactly one succeeds; the
// losers observe AlreadyMatched.
func (m *Matcher) AcceptBid(ctx context.Context, requestID, bidID, byRiderID uuid.UUID) (*ride.Ride, error) {
	start := time.Now()

	var newRide ride.Ride
	var bidCount int
	err := m.ledger.WithRequest(requestID, func(r *request.Request) error {
		if r.RiderID != byRiderID {
			return request.ErrNotYourRequest
		}
		switch r.Status {
		case request.StatusBiddingOpen:
			// proceed
		case request.StatusMatched, request.StatusInProgress, request.StatusCompleted:
			return request.ErrAlreadyMatched
		default:
			return request.ErrRequestNotOpen
		}

		// Issue the code first: Accept flips bid states, and a code
		// failure must not leave them flipped under a still-open request.
		code, err := m.codes.Generate()
		if err != nil {
			return err
		}

		accepted, err := m.collector.Accept(requestID, bidID)
		if err != nil {
			return err
		}

		now := time.Now()
		created := &ride.Ride{
			ID:         uuid.New(),
			RequestID:  requestID,
			BidID:      accepted.ID,
			RiderID:    r.RiderID,
			DriverID:   accepted.DriverID,
			Fare:       accepted.Amount,
			PickupCode: code,
			Status:     ride.StatusMatched,
			MatchedAt:  now,
			UpdatedAt:  now,
		}

		m.mu.Lock()
		m.rides[created.ID] = created
		m.byRequest[requestID] = created.ID
		m.mu.Unlock()

		r.Status = request.StatusMatched
		r.MatchedAt = &now
		r.UpdatedAt = now

		m.chat.Open(created.ID, created.RiderID, created.DriverID)

		newRide = *created
		bidCount = len(m.collector.BidsFor(requestID))
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.ledger.StopTimer(requestID)
	observability.MatchesCommitted.Inc()
	observability.OpenRequests.Dec()
	observability.AcceptLatency.Observe(time.Since(start).Seconds())
	m.monitor.RecordMatchCommitted(newRide.ID.String(), newRide.Fare, bidCount)

	m.logger.Info("Match committed",
		logger.String("ride_id", newRide.ID.String()),
		logger.String("request_id", requestID.String()),
		logger.String("driver_id", newRide.DriverID.String()),
		logger.Float64("fare", newRide.Fare),
		logger.Int("total_bids", bidCount),
	)

	// The pickup code is disclosed to the rider only; the driver has to
	// obtain it in person at pickup.
	m.fanout.Notify(ctx, newRide.RiderID, events.New(events.TypeMatched, events.Matched{
		RideID:     newRide.ID,
		RequestID:  requestID,
		RiderID:    newRide.RiderID,
		DriverID:   newRide.DriverID,
		Fare:       newRide.Fare,
		ChannelID:  newRide.ID,
		PickupCode: newRide.PickupCode,
	}))
	m.fanout.Notify(ctx, newRide.DriverID, events.New(events.TypeMatched, events.Matched{
		RideID:    newRide.ID,
		RequestID: requestID,
		RiderID:   newRide.RiderID,
		DriverID:  newRide.DriverID,
		Fare:      newRide.Fare,
		ChannelID: newRide.ID,
	}))
	m.fanout.NotifyRole(ctx, notify.RoleDriver, events.New(events.TypeRequestClosed, events.RequestClosed{
		RequestID: requestID,
		Reason:    "matched",
	}), nil)

	if m.settler != nil {
		held := newRide
		go func() {
			if err := m.settler.Hold(context.Background(), &held); err != nil {
				m.logger.Error("Failed to place settlement hold",
					logger.String("ride_id", held.ID.String()),
					logger.Err(err),
				)
			}
		}()
	}

	public := newRide
	public.PickupCode = ""
	return &public, nil
}

// VerifyPickupCode compares the driver-supplied code. A match starts
// the ride; a mismatch counts an attempt, and on the configured limit
// the ride escalates to NeedsSupport and leaves the automated flow.
func (m *Matcher) VerifyPickupCode(ctx context.Context, rideID, byDriverID uuid.UUID, code string) error {
	r, err := m.rideRef(rideID)
	if err != nil {
		return err
	}

	var started, escalated bool
	var attempts int
	err = m.ledger.WithRequest(r.RequestID, func(req *request.Request) error {
		if r.DriverID != byDriverID {
			return ride.ErrNotDriver
		}
		if r.Status == ride.StatusNeedsSupport {
			return ride.ErrNeedsSupport
		}
		if !r.CanVerifyCode() {
			return ride.ErrNotMatched
		}

		now := time.Now()
		if subtle.ConstantTimeCompare([]byte(code), []byte(r.PickupCode)) == 1 {
			r.Status = ride.StatusInProgress
			r.StartedAt = &now
			r.UpdatedAt = now
			req.Status = request.StatusInProgress
			req.UpdatedAt = now
			started = true
			return nil
		}

		r.CodeAttempts++
		r.UpdatedAt = now
		attempts = r.CodeAttempts
		if r.CodeAttempts >= m.cfg.CodeMaxAttempts {
			r.Status = ride.StatusNeedsSupport
			escalated = true
			return ride.ErrNeedsSupport
		}
		return ride.ErrCodeMismatch
	})

	if started {
		m.logger.Info("Pickup code verified, ride started",
			logger.String("ride_id", rideID.String()),
		)
		ev := events.New(events.TypeStarted, events.Started{RideID: rideID})
		m.fanout.Notify(ctx, r.RiderID, ev)
		m.fanout.Notify(ctx, r.DriverID, ev)
		return nil
	}

	// attempts is only set when the code actually mismatched; the
	// authorization and state rejections above are not code failures
	if attempts > 0 {
		observability.CodeFailures.Inc()
		m.monitor.RecordCodeFailure(rideID.String(), attempts, escalated)
	}
	if escalated {
		observability.SupportEscalated.Inc()
		m.logger.Warn("Ride escalated to operator support",
			logger.String("ride_id", rideID.String()),
			logger.Int("attempts", attempts),
		)
		ev := events.New(events.TypeNeedsSupport, events.NeedsSupport{
			RideID:   rideID,
			Attempts: attempts,
		})
		m.fanout.Notify(ctx, r.RiderID, ev)
		m.fanout.Notify(ctx, r.DriverID, ev)
		snapshot := m.snapshot(rideID)
		if snapshot != nil {
			snapshot.PickupCode = ""
			m.archive.ArchiveRide(ctx, snapshot)
		}
	}
	return err
}

// CompleteRide finishes an in-progress ride: terminal states for ride
// and request, chat teardown, archival and fare capture.
func (m *Matcher) CompleteRide(ctx context.Context, rideID, byID uuid.UUID) (*ride.Ride, error) {
	r, err := m.rideRef(rideID)
	if err != nil {
		return nil, err
	}

	var reqSnapshot request.Request
	err = m.ledger.WithRequest(r.RequestID, func(req *request.Request) error {
		if !r.Participant(byID) {
			return ride.ErrNotParticipant
		}
		if !r.CanComplete() {
			return ride.ErrNotInProgress
		}

		now := time.Now()
		r.Status = ride.StatusCompleted
		r.CompletedAt = &now
		r.UpdatedAt = now
		req.Status = request.StatusCompleted
		req.UpdatedAt = now
		reqSnapshot = *req
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.RidesCompleted.Inc()
	m.monitor.RecordRideCompleted(rideID.String(), r.Fare)
	m.logger.Info("Ride completed",
		logger.String("ride_id", rideID.String()),
		logger.Float64("fare", r.Fare),
	)

	msgs := m.chat.Close(rideID)
	snapshot := m.snapshot(rideID)
	m.archive.ArchiveRequest(ctx, &reqSnapshot)
	m.archive.ArchiveRide(ctx, snapshot)
	m.archive.ArchiveMessages(ctx, msgs)

	ev := events.New(events.TypeCompleted, events.Completed{RideID: rideID, Fare: r.Fare})
	m.fanout.Notify(ctx, r.RiderID, ev)
	m.fanout.Notify(ctx, r.DriverID, ev)

	if m.settler != nil {
		go func() {
			if err := m.settler.Capture(context.Background(), rideID); err != nil {
				m.logger.Error("Failed to capture settlement",
					logger.String("ride_id", rideID.String()),
					logger.Err(err),
				)
			}
		}()
	}

	return snapshot, nil
}

// CancelRequest cancels a request that has not started or finished.
// For a matched request the active ride is cancelled with it, the chat
// channel closes and the counterpart is told.
func (m *Matcher) CancelRequest(ctx context.Context, requestID, byID uuid.UUID) error {
	var cancelled *ride.Ride
	var reqSnapshot request.Request
	err := m.ledger.WithRequest(requestID, func(req *request.Request) error {
		if !req.CanCancel() {
			return request.ErrNotCancellable
		}

		now := time.Now()
		m.mu.RLock()
		r := m.rides[m.byRequest[requestID]]
		m.mu.RUnlock()
		if r != nil {
			if r.CanCancel() {
				r.Status = ride.StatusCancelled
				r.CancelledAt = &now
				r.UpdatedAt = now
				snapshot := *r
				cancelled = &snapshot
			}
		}

		req.Status = request.StatusCancelled
		req.CancelledAt = &now
		req.CancelledBy = &byID
		req.UpdatedAt = now
		reqSnapshot = *req
		return nil
	})
	if err != nil {
		return err
	}

	m.ledger.StopTimer(requestID)
	observability.RequestsCanceled.Inc()
	m.logger.Info("Ride request cancelled",
		logger.String("request_id", requestID.String()),
		logger.String("cancelled_by", byID.String()),
	)

	if cancelled != nil {
		msgs := m.chat.Close(cancelled.ID)
		m.archive.ArchiveRequest(ctx, &reqSnapshot)
		m.archive.ArchiveRide(ctx, cancelled)
		m.archive.ArchiveMessages(ctx, msgs)

		rid := cancelled.ID
		ev := events.New(events.TypeCancelled, events.Cancelled{
			RequestID:   requestID,
			RideID:      &rid,
			CancelledBy: byID,
		})
		// Tell the party that did not initiate the cancel
		if byID == cancelled.RiderID {
			m.fanout.Notify(ctx, cancelled.DriverID, ev)
		} else {
			m.fanout.Notify(ctx, cancelled.RiderID, ev)
		}

		if m.settler != nil {
			go func() {
				if err := m.settler.Release(context.Background(), rid); err != nil {
					m.logger.Error("Failed to release settlement hold",
						logger.String("ride_id", rid.String()),
						logger.Err(err),
					)
				}
			}()
		}
		return nil
	}

	// No match yet: the request simply leaves the open pool
	observability.OpenRequests.Dec()
	if byID != reqSnapshot.RiderID {
		m.fanout.Notify(ctx, reqSnapshot.RiderID, events.New(events.TypeCancelled, events.Cancelled{
			RequestID:   requestID,
			CancelledBy: byID,
		}))
	}
	m.fanout.NotifyRole(ctx, notify.RoleDriver, events.New(events.TypeRequestClosed, events.RequestClosed{
		RequestID: requestID,
		Reason:    "cancelled",
	}), nil)
	m.archive.ArchiveRequest(ctx, &reqSnapshot)
	return nil
}

// Ride returns a snapshot of an active ride, without the pickup code
func (m *Matcher) Ride(rideID uuid.UUID) (*ride.Ride, error) {
	snapshot := m.snapshot(rideID)
	if snapshot == nil {
		return nil, ride.ErrRideNotFound
	}
	snapshot.PickupCode = ""
	return snapshot, nil
}

// RideByRequest returns the ride bound to a request, if any
func (m *Matcher) RideByRequest(requestID uuid.UUID) (*ride.Ride, error) {
	m.mu.RLock()
	rideID, ok := m.byRequest[requestID]
	m.mu.RUnlock()
	if !ok {
		return nil, ride.ErrRideNotFound
	}
	return m.Ride(rideID)
}

// NeedsSupport lists rides awaiting operator intervention
func (m *Matcher) NeedsSupport() []*ride.Ride {
	m.mu.RLock()
	ids := make([]uuid.UUID, 0, len(m.rides))
	for id := range m.rides {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var out []*ride.Ride
	for _, id := range ids {
		snapshot := m.snapshot(id)
		if snapshot != nil && snapshot.Status == ride.StatusNeedsSupport {
			snapshot.PickupCode = ""
			out = append(out, snapshot)
		}
	}
	return out
}

// rideRef returns the live ride object; callers mutate it only under
// the owning request's lock
func (m *Matcher) rideRef(rideID uuid.UUID) (*ride.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, ride.ErrRideNotFound
	}
	return r, nil
}

// snapshot copies the ride under its owning request's lock. Ride fields
// are only ever written inside WithRequest, so reading under the same
// lock is what makes the copy consistent.
func (m *Matcher) snapshot(rideID uuid.UUID) *ride.Ride {
	m.mu.RLock()
	r, ok := m.rides[rideID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	var out ride.Ride
	if err := m.ledger.WithRequest(r.RequestID, func(*request.Request) error {
		out = *r
		return nil
	}); err != nil {
		return nil
	}
	return &out
}
