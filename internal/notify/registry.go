package notify

import (
	"context"

	"github.com/google/uuid"
)

// Roles understood by the fanout layer. The identity provider assigns
// exactly one role per connection.
const (
	RoleRider  = "rider"
	RoleDriver = "driver"
)

// Registry tracks which identities currently hold a live transport
// connection. It is injected into every component that needs to reach a
// party, replacing any process-wide transport singleton. Registry state
// is transient: losing it only affects live delivery, never ride state.
type Registry interface {
	// Deliver pushes raw bytes to every live connection of the identity.
	// It returns true if at least one connection accepted the payload.
	// It must never block.
	Deliver(identityID uuid.UUID, data []byte) bool

	// IsConnected reports whether the identity has any live connection
	IsConnected(identityID uuid.UUID) bool

	// ConnectedByRole returns identities of the given role with at least
	// one live connection
	ConnectedByRole(role string) []uuid.UUID
}

// OfflineQueue stores undeliverable events for replay on reconnect.
// Implementations must preserve insertion order per identity.
type OfflineQueue interface {
	Push(ctx context.Context, identityID uuid.UUID, data []byte) error
	// Drain returns and removes all queued payloads for the identity,
	// oldest first
	Drain(ctx context.Context, identityID uuid.UUID) ([][]byte, error)
}

// Presence reports whether a driver has marked themselves available for
// new requests. Distinct from connectivity: a connected driver who
// toggled offline should not receive open-request broadcasts.
type Presence interface {
	SetOnline(ctx context.Context, driverID uuid.UUID, online bool) error
	IsOnline(ctx context.Context, driverID uuid.UUID) bool
}
