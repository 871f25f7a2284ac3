package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farebid/dispatch/internal/domain/request"
	"github.com/farebid/dispatch/internal/events"
	"github.com/farebid/dispatch/internal/notify"
	"github.com/farebid/dispatch/internal/testutil"
	"github.com/farebid/dispatch/pkg/logger"
)

func newTestLedger(window time.Duration) (*Ledger, *testutil.FakeRegistry, *testutil.FakePresence) {
	registry := testutil.NewFakeRegistry()
	presence := testutil.NewFakePresence()
	fanout := notify.NewFanout(registry, testutil.NewFakeQueue(), logger.NewNop())
	return New(Config{BiddingWindow: window}, fanout, presence, nil, logger.NewNop()), registry, presence
}

func validLocation(address string) request.Location {
	return request.Location{Latitude: 12.9716, Longitude: 77.5946, Address: address}
}

// TestSubmit_OpensBidding tests that a valid submission opens bidding
// immediately with the configured deadline
func TestSubmit_OpensBidding(t *testing.T) {
	l, _, _ := newTestLedger(2 * time.Minute)

	before := time.Now()
	r, err := l.Submit(context.Background(), uuid.New(), validLocation("MG Road"), validLocation("Airport"))
	require.NoError(t, err)

	assert.Equal(t, request.StatusBiddingOpen, r.Status)
	assert.False(t, r.BiddingDeadline.Before(before.Add(2*time.Minute)), "deadline should be a full window out")

	got, err := l.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusBiddingOpen, got.Status)
}

// TestSubmit_BroadcastsToOnlineDriversOnly tests that only drivers who
// are connected and marked available hear about a new request
func TestSubmit_BroadcastsToOnlineDriversOnly(t *testing.T) {
	l, registry, presence := newTestLedger(2 * time.Minute)
	ctx := context.Background()

	onlineDriver := uuid.New()
	offDutyDriver := uuid.New()
	registry.Connect(onlineDriver, notify.RoleDriver)
	registry.Connect(offDutyDriver, notify.RoleDriver)
	require.NoError(t, presence.SetOnline(ctx, onlineDriver, true))

	_, err := l.Submit(ctx, uuid.New(), validLocation("MG Road"), validLocation("Airport"))
	require.NoError(t, err)

	assert.Equal(t, []events.Type{events.TypeRequestOpen}, registry.EventTypes(onlineDriver))
	assert.Empty(t, registry.EventTypes(offDutyDriver), "off-duty driver should not be broadcast to")
}

// TestSubmit_InvalidLocation tests location validation on both endpoints
func TestSubmit_InvalidLocation(t *testing.T) {
	l, _, _ := newTestLedger(2 * time.Minute)
	ctx := context.Background()
	riderID := uuid.New()

	tests := []struct {
		name        string
		pickup      request.Location
		destination request.Location
	}{
		{
			name:        "latitude out of range",
			pickup:      request.Location{Latitude: 91.0, Longitude: 77.59, Address: "nowhere"},
			destination: validLocation("Airport"),
		},
		{
			name:        "longitude out of range",
			pickup:      validLocation("MG Road"),
			destination: request.Location{Latitude: 12.97, Longitude: -181.0, Address: "nowhere"},
		},
		{
			name:        "missing address",
			pickup:      request.Location{Latitude: 12.97, Longitude: 77.59},
			destination: validLocation("Airport"),
		},
		{
			name:        "zero coordinates",
			pickup:      request.Location{Address: "null island"},
			destination: validLocation("Airport"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Submit(ctx, riderID, tt.pickup, tt.destination)
			assert.ErrorIs(t, err, request.ErrInvalidLocation)
		})
	}
}

// TestGet_UnknownRequest tests lookups of requests that never existed
func TestGet_UnknownRequest(t *testing.T) {
	l, _, _ := newTestLedger(2 * time.Minute)

	_, err := l.Get(uuid.New())
	assert.ErrorIs(t, err, request.ErrRequestNotFound)

	err = l.WithRequest(uuid.New(), func(*request.Request) error { return nil })
	assert.ErrorIs(t, err, request.ErrRequestNotFound)
}

// TestExpire_NotifiesOnce tests that expiry is idempotent: the rider
// hears about it exactly once no matter how often the timer fires
func TestExpire_NotifiesOnce(t *testing.T) {
	l, registry, _ := newTestLedger(time.Hour)
	ctx := context.Background()

	riderID := uuid.New()
	registry.Connect(riderID, notify.RoleRider)

	r, err := l.Submit(ctx, riderID, validLocation("MG Road"), validLocation("Airport"))
	require.NoError(t, err)

	l.Expire(r.ID)
	l.Expire(r.ID)

	got, err := l.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusExpired, got.Status)
	assert.Equal(t, []events.Type{events.TypeRequestExpired}, registry.EventTypes(riderID))
}

// TestExpire_TimerFires tests that the armed deadline timer expires the
// request without any explicit call
func TestExpire_TimerFires(t *testing.T) {
	l, _, _ := newTestLedger(20 * time.Millisecond)

	r, err := l.Submit(context.Background(), uuid.New(), validLocation("MG Road"), validLocation("Airport"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := l.Get(r.ID)
		return err == nil && got.Status == request.StatusExpired
	}, 2*time.Second, 10*time.Millisecond)
}

// TestExpire_LosesRaceToMatch tests the late timer edge: a request that
// already left BiddingOpen is never expired
func TestExpire_LosesRaceToMatch(t *testing.T) {
	l, _, _ := newTestLedger(time.Hour)

	r, err := l.Submit(context.Background(), uuid.New(), validLocation("MG Road"), validLocation("Airport"))
	require.NoError(t, err)

	require.NoError(t, l.WithRequest(r.ID, func(req *request.Request) error {
		req.Status = request.StatusMatched
		return nil
	}))

	l.Expire(r.ID)

	got, err := l.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusMatched, got.Status)
}

// TestOpenRequests_FiltersClosed tests the driver-side feed
func TestOpenRequests_FiltersClosed(t *testing.T) {
	l, _, _ := newTestLedger(time.Hour)
	ctx := context.Background()

	open, err := l.Submit(ctx, uuid.New(), validLocation("MG Road"), validLocation("Airport"))
	require.NoError(t, err)
	expired, err := l.Submit(ctx, uuid.New(), validLocation("Indiranagar"), validLocation("Whitefield"))
	require.NoError(t, err)

	l.Expire(expired.ID)

	feed := l.OpenRequests()
	require.Len(t, feed, 1)
	assert.Equal(t, open.ID, feed[0].ID)
}

// TestOpenRequests_ConcurrentWithTransitions lists the open pool while
// requests expire underneath it. The feed reads each request under its
// own lock, so the listing never tears a transition in flight.
func TestOpenRequests_ConcurrentWithTransitions(t *testing.T) {
	l, _, _ := newTestLedger(time.Hour)
	ctx := context.Background()

	ids := make([]uuid.UUID, 0, 8)
	for i := 0; i < 8; i++ {
		r, err := l.Submit(ctx, uuid.New(), validLocation("MG Road"), validLocation("Airport"))
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			for _, r := range l.OpenRequests() {
				assert.Equal(t, request.StatusBiddingOpen, r.Status)
			}
		}
	}()

	for _, id := range ids {
		l.Expire(id)
	}
	close(done)
	wg.Wait()

	assert.Empty(t, l.OpenRequests())
}
