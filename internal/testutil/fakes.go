// Package testutil provides in-memory doubles for the transport,
// persistence, and payment boundaries so service tests run without
// Redis, PostgreSQL, Kafka, or Stripe.
package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/farebid/dispatch/internal/domain/chat"
	"github.com/farebid/dispatch/internal/domain/request"
	"github.com/farebid/dispatch/internal/domain/ride"
	"github.com/farebid/dispatch/internal/events"
)

// FakeRegistry implements notify.Registry. Identities are "connected"
// once marked so; delivered payloads are recorded per identity in
// arrival order.
type FakeRegistry struct {
	mu        sync.Mutex
	connected map[uuid.UUID]string
	delivered map[uuid.UUID][][]byte
}

func NewFakeRegistry() *FakeRegistry {
	return &FakeRegistry{
		connected: make(map[uuid.UUID]string),
		delivered: make(map[uuid.UUID][][]byte),
	}
}

// Connect marks the identity as having a live connection with the role.
func (r *FakeRegistry) Connect(id uuid.UUID, role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected[id] = role
}

// Disconnect drops the identity's connection.
func (r *FakeRegistry) Disconnect(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connected, id)
}

func (r *FakeRegistry) Deliver(id uuid.UUID, data []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.connected[id]; !ok {
		return false
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	r.delivered[id] = append(r.delivered[id], buf)
	return true
}

func (r *FakeRegistry) IsConnected(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.connected[id]
	return ok
}

func (r *FakeRegistry) ConnectedByRole(role string) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for id, rl := range r.connected {
		if rl == role {
			ids = append(ids, id)
		}
	}
	return ids
}

// Delivered returns the payloads delivered to an identity so far.
func (r *FakeRegistry) Delivered(id uuid.UUID) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.delivered[id]))
	copy(out, r.delivered[id])
	return out
}

// Events decodes every payload delivered to an identity.
func (r *FakeRegistry) Events(id uuid.UUID) []events.Envelope {
	var evs []events.Envelope
	for _, data := range r.Delivered(id) {
		if ev, err := events.Decode(data); err == nil {
			evs = append(evs, ev)
		}
	}
	return evs
}

// EventTypes lists the types delivered to an identity, in order.
func (r *FakeRegistry) EventTypes(id uuid.UUID) []events.Type {
	var types []events.Type
	for _, ev := range r.Events(id) {
		types = append(types, ev.Type)
	}
	return types
}

// FakeQueue implements notify.OfflineQueue in memory, preserving
// insertion order per identity.
type FakeQueue struct {
	mu     sync.Mutex
	queued map[uuid.UUID][][]byte
}

func NewFakeQueue() *FakeQueue {
	return &FakeQueue{queued: make(map[uuid.UUID][][]byte)}
}

func (q *FakeQueue) Push(_ context.Context, id uuid.UUID, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	q.queued[id] = append(q.queued[id], buf)
	return nil
}

func (q *FakeQueue) Drain(_ context.Context, id uuid.UUID) ([][]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.queued[id]
	delete(q.queued, id)
	return out, nil
}

// Len reports how many payloads are queued for an identity.
func (q *FakeQueue) Len(id uuid.UUID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queued[id])
}

// FakePresence implements notify.Presence in memory.
type FakePresence struct {
	mu     sync.Mutex
	online map[uuid.UUID]bool
}

func NewFakePresence() *FakePresence {
	return &FakePresence{online: make(map[uuid.UUID]bool)}
}

func (p *FakePresence) SetOnline(_ context.Context, id uuid.UUID, online bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[id] = online
	return nil
}

func (p *FakePresence) IsOnline(_ context.Context, id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[id]
}

// FakeArchiver implements dispatch.Archiver, recording what was
// archived.
type FakeArchiver struct {
	mu       sync.Mutex
	Requests []*request.Request
	Rides    []*ride.Ride
	Messages []*chat.Message
}

func NewFakeArchiver() *FakeArchiver {
	return &FakeArchiver{}
}

func (a *FakeArchiver) ArchiveRequest(_ context.Context, r *request.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Requests = append(a.Requests, r)
}

func (a *FakeArchiver) ArchiveRide(_ context.Context, r *ride.Ride) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Rides = append(a.Rides, r)
}

func (a *FakeArchiver) ArchiveMessages(_ context.Context, msgs []*chat.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Messages = append(a.Messages, msgs...)
}

// ArchivedRides returns a snapshot of archived rides.
func (a *FakeArchiver) ArchivedRides() []*ride.Ride {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*ride.Ride, len(a.Rides))
	copy(out, a.Rides)
	return out
}

// FakeSettler implements dispatch.Settler, recording the settlement
// calls per ride.
type FakeSettler struct {
	mu       sync.Mutex
	Held     []uuid.UUID
	Captured []uuid.UUID
	Released []uuid.UUID
}

func NewFakeSettler() *FakeSettler {
	return &FakeSettler{}
}

func (s *FakeSettler) Hold(_ context.Context, r *ride.Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Held = append(s.Held, r.ID)
	return nil
}

func (s *FakeSettler) Capture(_ context.Context, rideID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Captured = append(s.Captured, rideID)
	return nil
}

func (s *FakeSettler) Release(_ context.Context, rideID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Released = append(s.Released, rideID)
	return nil
}

// HeldCount reports how many holds were placed.
func (s *FakeSettler) HeldCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Held)
}

// CapturedCount reports how many holds were captured.
func (s *FakeSettler) CapturedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Captured)
}

// ReleasedCount reports how many holds were released.
func (s *FakeSettler) ReleasedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Released)
}
