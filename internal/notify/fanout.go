package notify

import (
	"context"

	"github.com/farebid/dispatch/internal/events"
	"github.com/farebid/dispatch/pkg/logger"
	"github.com/google/uuid"
)

// Fanout pushes events to live connections and queues them for offline
// recipients. Delivery is best-effort: a slow or absent recipient never
// surfaces as an error to the component triggering the push.
type Fanout struct {
	registry Registry
	queue    OfflineQueue
	logger   *logger.Logger
}

// NewFanout creates a fanout over the given registry and offline queue
func NewFanout(registry Registry, queue OfflineQueue, log *logger.Logger) *Fanout {
	return &Fanout{
		registry: registry,
		queue:    queue,
		logger:   log,
	}
}

// Notify pushes an event to one identity. It returns true if a live
// connection accepted it; otherwise the event is queued for replay and
// false is returned. Queue failures are logged, never propagated.
func (f *Fanout) Notify(ctx context.Context, identityID uuid.UUID, ev events.Envelope) bool {
	data := ev.Encode()
	if f.registry.Deliver(identityID, data) {
		return true
	}

	if err := f.queue.Push(ctx, identityID, data); err != nil {
		f.logger.Error("Failed to queue offline event",
			logger.String("identity_id", identityID.String()),
			logger.String("event_type", string(ev.Type)),
			logger.Err(err),
		)
	}
	return false
}

// NotifyRole pushes an event to every connected identity of the role,
// optionally filtered. Offline identities are skipped: role broadcasts
// describe the live pool and are not worth replaying.
func (f *Fanout) NotifyRole(ctx context.Context, role string, ev events.Envelope, filter func(uuid.UUID) bool) int {
	data := ev.Encode()
	sent := 0
	for _, id := range f.registry.ConnectedByRole(role) {
		if filter != nil && !filter(id) {
			continue
		}
		if f.registry.Deliver(id, data) {
			sent++
		}
	}
	f.logger.Debug("Role broadcast",
		logger.String("role", role),
		logger.String("event_type", string(ev.Type)),
		logger.Int("delivered", sent),
	)
	return sent
}

// Replay drains the identity's offline queue in order and delivers each
// event to its live connections. Called when an identity reconnects.
func (f *Fanout) Replay(ctx context.Context, identityID uuid.UUID) int {
	queued, err := f.queue.Drain(ctx, identityID)
	if err != nil {
		f.logger.Error("Failed to drain offline queue",
			logger.String("identity_id", identityID.String()),
			logger.Err(err),
		)
		return 0
	}

	replayed := 0
	for _, data := range queued {
		if f.registry.Deliver(identityID, data) {
			replayed++
			continue
		}
		// Connection dropped mid-replay; keep the rest for next time
		if err := f.queue.Push(ctx, identityID, data); err != nil {
			f.logger.Error("Failed to requeue offline event",
				logger.String("identity_id", identityID.String()),
				logger.Err(err),
			)
		}
	}

	if replayed > 0 {
		f.logger.Info("Replayed offline events",
			logger.String("identity_id", identityID.String()),
			logger.Int("count", replayed),
		)
	}
	return replayed
}

// IsConnected reports whether the identity has a live connection
func (f *Fanout) IsConnected(identityID uuid.UUID) bool {
	return f.registry.IsConnected(identityID)
}
