package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farebid/dispatch/internal/events"
	"github.com/farebid/dispatch/internal/testutil"
	"github.com/farebid/dispatch/pkg/logger"
)

func envelope(requestID uuid.UUID) events.Envelope {
	return events.New(events.TypeRequestExpired, events.RequestExpired{RequestID: requestID})
}

// TestNotify_DeliversToConnected tests the live delivery path
func TestNotify_DeliversToConnected(t *testing.T) {
	registry := testutil.NewFakeRegistry()
	queue := testutil.NewFakeQueue()
	f := NewFanout(registry, queue, logger.NewNop())

	id := uuid.New()
	registry.Connect(id, RoleRider)

	delivered := f.Notify(context.Background(), id, envelope(uuid.New()))
	assert.True(t, delivered)
	assert.Len(t, registry.Delivered(id), 1)
	assert.Zero(t, queue.Len(id))
}

// TestNotify_QueuesForOffline tests that missed events park in the
// offline queue instead of being dropped
func TestNotify_QueuesForOffline(t *testing.T) {
	registry := testutil.NewFakeRegistry()
	queue := testutil.NewFakeQueue()
	f := NewFanout(registry, queue, logger.NewNop())

	id := uuid.New()
	delivered := f.Notify(context.Background(), id, envelope(uuid.New()))
	assert.False(t, delivered)
	assert.Equal(t, 1, queue.Len(id))
}

// TestReplay_PreservesOrder tests that queued events come back in the
// order they were missed
func TestReplay_PreservesOrder(t *testing.T) {
	registry := testutil.NewFakeRegistry()
	queue := testutil.NewFakeQueue()
	f := NewFanout(registry, queue, logger.NewNop())
	ctx := context.Background()

	id := uuid.New()
	first := uuid.New()
	second := uuid.New()
	third := uuid.New()
	for _, reqID := range []uuid.UUID{first, second, third} {
		f.Notify(ctx, id, envelope(reqID))
	}

	registry.Connect(id, RoleRider)
	n := f.Replay(ctx, id)
	assert.Equal(t, 3, n)
	assert.Zero(t, queue.Len(id))

	evs := registry.Events(id)
	require.Len(t, evs, 3)

	var got []uuid.UUID
	for _, ev := range evs {
		var payload events.RequestExpired
		require.NoError(t, json.Unmarshal(ev.Payload, &payload))
		got = append(got, payload.RequestID)
	}
	assert.Equal(t, []uuid.UUID{first, second, third}, got)

	// Nothing left to replay
	assert.Zero(t, f.Replay(ctx, id))
}

// TestNotifyRole_Filter tests role broadcast with a per-identity filter
func TestNotifyRole_Filter(t *testing.T) {
	registry := testutil.NewFakeRegistry()
	f := NewFanout(registry, testutil.NewFakeQueue(), logger.NewNop())
	ctx := context.Background()

	wanted := uuid.New()
	filtered := uuid.New()
	rider := uuid.New()
	registry.Connect(wanted, RoleDriver)
	registry.Connect(filtered, RoleDriver)
	registry.Connect(rider, RoleRider)

	n := f.NotifyRole(ctx, RoleDriver, envelope(uuid.New()), func(id uuid.UUID) bool {
		return id == wanted
	})

	assert.Equal(t, 1, n)
	assert.Len(t, registry.Delivered(wanted), 1)
	assert.Empty(t, registry.Delivered(filtered))
	assert.Empty(t, registry.Delivered(rider), "role broadcast never crosses roles")
}
