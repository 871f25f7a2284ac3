package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farebid/dispatch/internal/domain/bid"
	chatdomain "github.com/farebid/dispatch/internal/domain/chat"
	"github.com/farebid/dispatch/internal/domain/request"
	"github.com/farebid/dispatch/internal/domain/ride"
	"github.com/farebid/dispatch/internal/events"
	"github.com/farebid/dispatch/internal/notify"
	"github.com/farebid/dispatch/internal/service/bidding"
	chatsvc "github.com/farebid/dispatch/internal/service/chat"
	"github.com/farebid/dispatch/internal/service/ledger"
	"github.com/farebid/dispatch/internal/testutil"
	"github.com/farebid/dispatch/pkg/logger"
)

type stack struct {
	ledger    *ledger.Ledger
	collector *bidding.Collector
	chat      *chatsvc.Service
	matcher   *Matcher
	registry  *testutil.FakeRegistry
	queue     *testutil.FakeQueue
	archiver  *testutil.FakeArchiver
	settler   *testutil.FakeSettler

	riderID   uuid.UUID
	requestID uuid.UUID
}

func newStack(t *testing.T) *stack {
	t.Helper()

	registry := testutil.NewFakeRegistry()
	queue := testutil.NewFakeQueue()
	archiver := testutil.NewFakeArchiver()
	settler := testutil.NewFakeSettler()
	fanout := notify.NewFanout(registry, queue, logger.NewNop())

	l := ledger.New(ledger.Config{BiddingWindow: time.Hour}, fanout, testutil.NewFakePresence(), nil, logger.NewNop())
	collector := bidding.New(l, fanout, logger.NewNop())
	chat := chatsvc.NewService(fanout, logger.NewNop())
	matcher := New(Config{CodeLength: 4, CodeMaxAttempts: 3}, l, collector, chat, fanout, archiver, settler, nil, logger.NewNop())

	riderID := uuid.New()
	r, err := l.Submit(context.Background(), riderID,
		request.Location{Latitude: 12.9716, Longitude: 77.5946, Address: "MG Road"},
		request.Location{Latitude: 13.1986, Longitude: 77.7066, Address: "Airport"},
	)
	require.NoError(t, err)

	return &stack{
		ledger:    l,
		collector: collector,
		chat:      chat,
		matcher:   matcher,
		registry:  registry,
		queue:     queue,
		archiver:  archiver,
		settler:   settler,
		riderID:   riderID,
		requestID: r.ID,
	}
}

func (s *stack) bidFrom(t *testing.T, driverID uuid.UUID, amount float64) *bid.Bid {
	t.Helper()
	b, err := s.collector.SubmitBid(context.Background(), s.requestID, driverID, amount, "")
	require.NoError(t, err)
	return b
}

// issuedCode reads the live pickup code for assertions; the public
// surfaces never expose it
func (s *stack) issuedCode(t *testing.T, rideID uuid.UUID) string {
	t.Helper()
	s.matcher.mu.RLock()
	defer s.matcher.mu.RUnlock()
	r, ok := s.matcher.rides[rideID]
	require.True(t, ok)
	return r.PickupCode
}

func matchedPayload(t *testing.T, evs []events.Envelope) *events.Matched {
	t.Helper()
	for _, ev := range evs {
		if ev.Type == events.TypeMatched {
			var m events.Matched
			require.NoError(t, json.Unmarshal(ev.Payload, &m))
			return &m
		}
	}
	return nil
}

// TestAcceptBid_CommitsExclusiveMatch tests the full match commit: one
// winner, everyone else rejected, a chat channel opened and the pickup
// code disclosed to the rider alone
func TestAcceptBid_CommitsExclusiveMatch(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	winner := uuid.New()
	loser := uuid.New()
	s.registry.Connect(s.riderID, notify.RoleRider)
	s.registry.Connect(winner, notify.RoleDriver)
	s.registry.Connect(loser, notify.RoleDriver)

	winningBid := s.bidFrom(t, winner, 230.0)
	losingBid := s.bidFrom(t, loser, 260.0)

	r, err := s.matcher.AcceptBid(ctx, s.requestID, winningBid.ID, s.riderID)
	require.NoError(t, err)

	assert.Equal(t, ride.StatusMatched, r.Status)
	assert.Equal(t, winner, r.DriverID)
	assert.Equal(t, 230.0, r.Fare)
	assert.Empty(t, r.PickupCode, "pickup code never leaves via the API")

	req, err := s.ledger.Get(s.requestID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusMatched, req.Status)

	rejected, err := s.collector.Get(losingBid.ID)
	require.NoError(t, err)
	assert.Equal(t, bid.StatusRejected, rejected.Status)

	_, err = s.matcher.AcceptBid(ctx, s.requestID, losingBid.ID, s.riderID)
	assert.ErrorIs(t, err, request.ErrAlreadyMatched)

	riderMatch := matchedPayload(t, s.registry.Events(s.riderID))
	require.NotNil(t, riderMatch)
	assert.Regexp(t, regexp.MustCompile(`^\d{4}$`), riderMatch.PickupCode)
	assert.Equal(t, s.issuedCode(t, r.ID), riderMatch.PickupCode)

	driverMatch := matchedPayload(t, s.registry.Events(winner))
	require.NotNil(t, driverMatch)
	assert.Empty(t, driverMatch.PickupCode, "drivers learn the code in person only")

	assert.Contains(t, s.registry.EventTypes(loser), events.TypeRequestClosed)

	// Chat opens keyed by the ride id
	_, err = s.chat.Send(ctx, r.ID, s.riderID, "see you soon")
	assert.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.settler.HeldCount() == 1
	}, time.Second, 5*time.Millisecond)
}

// TestAcceptBid_RaceHasExactlyOneWinner tests N rider goroutines racing
// to accept different bids on the same request
func TestAcceptBid_RaceHasExactlyOneWinner(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	const n = 8
	bids := make([]*bid.Bid, n)
	for i := range bids {
		bids[i] = s.bidFrom(t, uuid.New(), 200.0+float64(i))
	}

	results := make([]error, n)
	var wg sync.WaitGroup
	for i := range bids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.matcher.AcceptBid(ctx, s.requestID, bids[i].ID, s.riderID)
		}(i)
	}
	wg.Wait()

	var wins, alreadyMatched int
	for _, err := range results {
		switch err {
		case nil:
			wins++
		case request.ErrAlreadyMatched:
			alreadyMatched++
		default:
			t.Fatalf("unexpected accept error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, alreadyMatched)
}

// TestAcceptBid_Rejections tests the accept preconditions
func TestAcceptBid_Rejections(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	b := s.bidFrom(t, uuid.New(), 200.0)

	_, err := s.matcher.AcceptBid(ctx, s.requestID, b.ID, uuid.New())
	assert.ErrorIs(t, err, request.ErrNotYourRequest)

	_, err = s.matcher.AcceptBid(ctx, s.requestID, uuid.New(), s.riderID)
	assert.ErrorIs(t, err, bid.ErrBidNotFound)

	s.ledger.Expire(s.requestID)
	_, err = s.matcher.AcceptBid(ctx, s.requestID, b.ID, s.riderID)
	assert.ErrorIs(t, err, request.ErrRequestNotOpen)
}

// TestVerifyPickupCode_StartsRide tests that the correct code moves the
// ride and its request to in progress, exactly once
func TestVerifyPickupCode_StartsRide(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	driverID := uuid.New()
	s.registry.Connect(s.riderID, notify.RoleRider)
	s.registry.Connect(driverID, notify.RoleDriver)
	b := s.bidFrom(t, driverID, 250.0)
	r, err := s.matcher.AcceptBid(ctx, s.requestID, b.ID, s.riderID)
	require.NoError(t, err)

	code := s.issuedCode(t, r.ID)

	err = s.matcher.VerifyPickupCode(ctx, r.ID, uuid.New(), code)
	assert.ErrorIs(t, err, ride.ErrNotDriver)

	require.NoError(t, s.matcher.VerifyPickupCode(ctx, r.ID, driverID, code))

	got, err := s.matcher.Ride(r.ID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusInProgress, got.Status)

	req, err := s.ledger.Get(s.requestID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusInProgress, req.Status)

	assert.Contains(t, s.registry.EventTypes(s.riderID), events.TypeStarted)
	assert.Contains(t, s.registry.EventTypes(driverID), events.TypeStarted)

	// Verification is a one-shot gate
	err = s.matcher.VerifyPickupCode(ctx, r.ID, driverID, code)
	assert.ErrorIs(t, err, ride.ErrNotMatched)
}

// TestVerifyPickupCode_EscalatesAfterThreeMismatches tests the support
// escalation path, and that not even the correct code recovers the ride
func TestVerifyPickupCode_EscalatesAfterThreeMismatches(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	driverID := uuid.New()
	s.registry.Connect(s.riderID, notify.RoleRider)
	s.registry.Connect(driverID, notify.RoleDriver)
	b := s.bidFrom(t, driverID, 250.0)
	r, err := s.matcher.AcceptBid(ctx, s.requestID, b.ID, s.riderID)
	require.NoError(t, err)

	code := s.issuedCode(t, r.ID)
	wrong := "0000"
	if wrong == code {
		wrong = "0001"
	}

	assert.ErrorIs(t, s.matcher.VerifyPickupCode(ctx, r.ID, driverID, wrong), ride.ErrCodeMismatch)
	assert.ErrorIs(t, s.matcher.VerifyPickupCode(ctx, r.ID, driverID, wrong), ride.ErrCodeMismatch)
	assert.ErrorIs(t, s.matcher.VerifyPickupCode(ctx, r.ID, driverID, wrong), ride.ErrNeedsSupport)

	got, err := s.matcher.Ride(r.ID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusNeedsSupport, got.Status)
	assert.Equal(t, 3, got.CodeAttempts)

	assert.Contains(t, s.registry.EventTypes(s.riderID), events.TypeNeedsSupport)
	assert.Contains(t, s.registry.EventTypes(driverID), events.TypeNeedsSupport)

	escalated := s.matcher.NeedsSupport()
	require.Len(t, escalated, 1)
	assert.Equal(t, r.ID, escalated[0].ID)

	// The correct code no longer helps; an operator has to step in
	assert.ErrorIs(t, s.matcher.VerifyPickupCode(ctx, r.ID, driverID, code), ride.ErrNeedsSupport)

	rides := s.archiver.ArchivedRides()
	require.Len(t, rides, 1)
	assert.Empty(t, rides[0].PickupCode, "archived rides carry no pickup code")
}

// TestCompleteRide tests completion by either party and its teardown
func TestCompleteRide(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	driverID := uuid.New()
	b := s.bidFrom(t, driverID, 250.0)
	r, err := s.matcher.AcceptBid(ctx, s.requestID, b.ID, s.riderID)
	require.NoError(t, err)

	_, err = s.matcher.CompleteRide(ctx, r.ID, s.riderID)
	assert.ErrorIs(t, err, ride.ErrNotInProgress, "a matched ride must start before completing")

	require.NoError(t, s.matcher.VerifyPickupCode(ctx, r.ID, driverID, s.issuedCode(t, r.ID)))

	_, err = s.matcher.CompleteRide(ctx, r.ID, uuid.New())
	assert.ErrorIs(t, err, ride.ErrNotParticipant)

	_, err = s.chat.Send(ctx, r.ID, driverID, "dropping you at the gate")
	require.NoError(t, err)

	done, err := s.matcher.CompleteRide(ctx, r.ID, s.riderID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusCompleted, done.Status)

	req, err := s.ledger.Get(s.requestID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusCompleted, req.Status)

	// Chat closes with the ride
	_, err = s.chat.Send(ctx, r.ID, s.riderID, "thanks")
	assert.ErrorIs(t, err, chatdomain.ErrChannelClosed)

	assert.Len(t, s.archiver.ArchivedRides(), 1)
	assert.Len(t, s.archiver.Messages, 1)

	require.Eventually(t, func() bool {
		return s.settler.CapturedCount() == 1
	}, time.Second, 5*time.Millisecond)

	_, err = s.matcher.CompleteRide(ctx, r.ID, s.riderID)
	assert.ErrorIs(t, err, ride.ErrNotInProgress)
}

// TestCancelRequest_DuringBidding tests a rider backing out while bids
// are still coming in
func TestCancelRequest_DuringBidding(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	driverID := uuid.New()
	s.registry.Connect(driverID, notify.RoleDriver)
	s.bidFrom(t, driverID, 240.0)

	require.NoError(t, s.matcher.CancelRequest(ctx, s.requestID, s.riderID))

	req, err := s.ledger.Get(s.requestID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusCancelled, req.Status)
	require.NotNil(t, req.CancelledBy)
	assert.Equal(t, s.riderID, *req.CancelledBy)

	assert.Contains(t, s.registry.EventTypes(driverID), events.TypeRequestClosed)

	_, err = s.collector.SubmitBid(ctx, s.requestID, uuid.New(), 210.0, "")
	assert.ErrorIs(t, err, request.ErrRequestNotOpen)

	err = s.matcher.CancelRequest(ctx, s.requestID, s.riderID)
	assert.ErrorIs(t, err, request.ErrNotCancellable, "a settled request cannot be cancelled twice")
}

// TestCancelRequest_AfterMatch tests that cancelling a matched request
// cancels its ride, tells the counterpart and releases the fare hold
func TestCancelRequest_AfterMatch(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	driverID := uuid.New()
	s.registry.Connect(s.riderID, notify.RoleRider)
	b := s.bidFrom(t, driverID, 250.0)
	r, err := s.matcher.AcceptBid(ctx, s.requestID, b.ID, s.riderID)
	require.NoError(t, err)

	require.NoError(t, s.matcher.CancelRequest(ctx, s.requestID, driverID))

	got, err := s.matcher.Ride(r.ID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusCancelled, got.Status)

	assert.Contains(t, s.registry.EventTypes(s.riderID), events.TypeCancelled)

	_, err = s.chat.Send(ctx, r.ID, s.riderID, "hello?")
	assert.ErrorIs(t, err, chatdomain.ErrChannelClosed)

	require.Eventually(t, func() bool {
		return s.settler.ReleasedCount() == 1
	}, time.Second, 5*time.Millisecond)
}

// TestCancelRequest_InProgress tests that a started ride cannot be
// cancelled through the request
func TestCancelRequest_InProgress(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	driverID := uuid.New()
	b := s.bidFrom(t, driverID, 250.0)
	r, err := s.matcher.AcceptBid(ctx, s.requestID, b.ID, s.riderID)
	require.NoError(t, err)
	require.NoError(t, s.matcher.VerifyPickupCode(ctx, r.ID, driverID, s.issuedCode(t, r.ID)))

	err = s.matcher.CancelRequest(ctx, s.requestID, s.riderID)
	assert.ErrorIs(t, err, request.ErrNotCancellable)
}

// TestRide_SnapshotsUnderConcurrentTransitions hammers the read
// surfaces while the ride moves through mismatch, start and completion.
// Every read goes through the owning request's lock, so no snapshot may
// observe a transition mid-write.
func TestRide_SnapshotsUnderConcurrentTransitions(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	driverID := uuid.New()
	b := s.bidFrom(t, driverID, 250.0)
	r, err := s.matcher.AcceptBid(ctx, s.requestID, b.ID, s.riderID)
	require.NoError(t, err)

	code := s.issuedCode(t, r.ID)
	wrong := "0000"
	if wrong == code {
		wrong = "0001"
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				if snap, err := s.matcher.Ride(r.ID); err == nil {
					assert.NotEmpty(t, snap.Status)
				}
				s.matcher.NeedsSupport()
				s.ledger.OpenRequests()
			}
		}()
	}

	assert.ErrorIs(t, s.matcher.VerifyPickupCode(ctx, r.ID, driverID, wrong), ride.ErrCodeMismatch)
	require.NoError(t, s.matcher.VerifyPickupCode(ctx, r.ID, driverID, code))
	_, err = s.matcher.CompleteRide(ctx, r.ID, driverID)
	require.NoError(t, err)

	close(done)
	wg.Wait()

	got, err := s.matcher.Ride(r.ID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusCompleted, got.Status)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

// TestAcceptBid_CodeFailureLeavesRequestOpen tests that a failed code
// issue aborts the accept before any bid state flips, so a retry can
// still win
func TestAcceptBid_CodeFailureLeavesRequestOpen(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	driverID := uuid.New()
	b := s.bidFrom(t, driverID, 250.0)

	s.matcher.codes.rander = failingReader{}
	_, err := s.matcher.AcceptBid(ctx, s.requestID, b.ID, s.riderID)
	require.Error(t, err)

	req, err := s.ledger.Get(s.requestID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusBiddingOpen, req.Status)

	got, err := s.collector.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, bid.StatusPending, got.Status)

	s.matcher.codes = NewCodeGenerator(4)
	r, err := s.matcher.AcceptBid(ctx, s.requestID, b.ID, s.riderID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusMatched, r.Status)
}
