package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/farebid/dispatch/internal/domain/request"
	"github.com/farebid/dispatch/internal/events"
	"github.com/farebid/dispatch/internal/notify"
	"github.com/farebid/dispatch/internal/observability"
	"github.com/farebid/dispatch/pkg/logger"
	"github.com/farebid/dispatch/pkg/monitoring"
	"github.com/google/uuid"
)

// Config holds ledger configuration
type Config struct {
	// BiddingWindow is how long a request accepts bids after submission
	BiddingWindow time.Duration
}

// Ledger owns the authoritative state machine for every ride request.
// Each request is serialized on its own lock: transitions on different
// requests never contend, transitions on the same request are strictly
// ordered. The matcher commits match and cancel transitions through
// WithRequest under that same lock.
type Ledger struct {
	cfg      Config
	fanout   *notify.Fanout
	presence notify.Presence
	monitor  *monitoring.NewRelicApp
	logger   *logger.Logger

	mu       sync.RWMutex
	requests map[uuid.UUID]*request.Request
	locks    map[uuid.UUID]*sync.Mutex
	timers   map[uuid.UUID]*time.Timer
}

// New creates a ledger. monitor may be nil when APM is disabled.
func New(cfg Config, fanout *notify.Fanout, presence notify.Presence, monitor *monitoring.NewRelicApp, log *logger.Logger) *Ledger {
	return &Ledger{
		cfg:      cfg,
		fanout:   fanout,
		presence: presence,
		monitor:  monitor,
		logger:   log,
		requests: make(map[uuid.UUID]*request.Request),
		locks:    make(map[uuid.UUID]*sync.Mutex),
		timers:   make(map[uuid.UUID]*time.Timer),
	}
}

// Submit validates locations, opens a new request for bidding and arms
// its expiry timer. The new request is announced to online drivers.
func (l *Ledger) Submit(ctx context.Context, riderID uuid.UUID, pickup, destination request.Location) (*request.Request, error) {
	if err := pickup.Validate(); err != nil {
		return nil, err
	}
	if err := destination.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	req := &request.Request{
		ID:              uuid.New(),
		RiderID:         riderID,
		Pickup:          pickup,
		Destination:     destination,
		Status:          request.StatusRequested,
		BiddingDeadline: now.Add(l.cfg.BiddingWindow),
		RequestedAt:     now,
		UpdatedAt:       now,
	}
	// Requested is transient: a valid submission opens bidding at once
	req.Status = request.StatusBiddingOpen

	l.mu.Lock()
	l.requests[req.ID] = req
	l.locks[req.ID] = &sync.Mutex{}
	id := req.ID
	l.timers[id] = time.AfterFunc(l.cfg.BiddingWindow, func() {
		l.Expire(id)
	})
	l.mu.Unlock()

	observability.RequestsOpened.Inc()
	observability.OpenRequests.Inc()
	l.monitor.RecordRequestOpened(req.ID.String())

	l.logger.Info("Ride request opened for bidding",
		logger.String("request_id", req.ID.String()),
		logger.String("rider_id", riderID.String()),
		logger.String("deadline", req.BiddingDeadline.Format(time.RFC3339)),
	)

	snapshot := *req
	l.fanout.NotifyRole(ctx, notify.RoleDriver, events.New(events.TypeRequestOpen, events.RequestOpen{
		RequestID:   snapshot.ID,
		RiderID:     snapshot.RiderID,
		Pickup:      snapshot.Pickup,
		Destination: snapshot.Destination,
		Deadline:    snapshot.BiddingDeadline,
	}), func(driverID uuid.UUID) bool {
		return l.presence.IsOnline(ctx, driverID)
	})

	return &snapshot, nil
}

// WithRequest runs fn under the request's exclusive lock. All state
// transitions on a request, including those committed by the matcher,
// go through here so they execute one at a time in arrival order.
func (l *Ledger) WithRequest(id uuid.UUID, fn func(*request.Request) error) error {
	l.mu.RLock()
	lock, ok := l.locks[id]
	l.mu.RUnlock()
	if !ok {
		return request.ErrRequestNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	l.mu.RLock()
	req := l.requests[id]
	l.mu.RUnlock()
	if req == nil {
		return request.ErrRequestNotFound
	}
	return fn(req)
}

// Get returns a snapshot of the request
func (l *Ledger) Get(id uuid.UUID) (*request.Request, error) {
	var snapshot request.Request
	err := l.WithRequest(id, func(r *request.Request) error {
		snapshot = *r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// OpenRequests returns requests currently accepting bids, for the
// driver-side feed
func (l *Ledger) OpenRequests() []*request.Request {
	l.mu.RLock()
	ids := make([]uuid.UUID, 0, len(l.requests))
	for id := range l.requests {
		ids = append(ids, id)
	}
	l.mu.RUnlock()

	now := time.Now()
	var open []*request.Request
	for _, id := range ids {
		snapshot, err := l.Get(id)
		if err != nil {
			continue
		}
		if snapshot.BiddingOpen(now) {
			open = append(open, snapshot)
		}
	}
	return open
}

// Expire moves a request to Expired when its bidding window lapses.
// Safe to call after the request already left BiddingOpen: the timer
// may fire after a match or cancel won the race.
func (l *Ledger) Expire(id uuid.UUID) {
	var expired bool
	var riderID uuid.UUID
	err := l.WithRequest(id, func(r *request.Request) error {
		if r.Status != request.StatusBiddingOpen {
			return nil
		}
		now := time.Now()
		r.Status = request.StatusExpired
		r.UpdatedAt = now
		expired = true
		riderID = r.RiderID
		return nil
	})
	if err != nil || !expired {
		return
	}

	l.dropTimer(id)
	observability.RequestsExpired.Inc()
	observability.OpenRequests.Dec()

	l.logger.Info("Ride request expired",
		logger.String("request_id", id.String()),
	)

	ctx := context.Background()
	l.fanout.Notify(ctx, riderID, events.New(events.TypeRequestExpired, events.RequestExpired{
		RequestID: id,
	}))
	l.fanout.NotifyRole(ctx, notify.RoleDriver, events.New(events.TypeRequestClosed, events.RequestClosed{
		RequestID: id,
		Reason:    "expired",
	}), nil)
}

// StopTimer disarms the request's expiry timer. Called by the matcher
// once a request leaves BiddingOpen for a reason other than expiry.
func (l *Ledger) StopTimer(id uuid.UUID) {
	l.mu.RLock()
	timer := l.timers[id]
	l.mu.RUnlock()
	if timer != nil {
		timer.Stop()
	}
	l.dropTimer(id)
}

func (l *Ledger) dropTimer(id uuid.UUID) {
	l.mu.Lock()
	delete(l.timers, id)
	l.mu.Unlock()
}
