package cache

import (
	"context"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const onlineDriversKey = "drivers:online"

// DriverPresence tracks which drivers have toggled themselves available
// for new requests. Presence is separate from connectivity: a connected
// driver who went offline keeps their websocket but stops receiving
// open-request broadcasts.
type DriverPresence struct {
	client *redis.Client
}

// NewDriverPresence creates a presence tracker over Redis
func NewDriverPresence(client *redis.Client) *DriverPresence {
	return &DriverPresence{client: client}
}

// SetOnline marks the driver available or unavailable
func (p *DriverPresence) SetOnline(ctx context.Context, driverID uuid.UUID, online bool) error {
	if online {
		return p.client.SAdd(ctx, onlineDriversKey, driverID.String()).Err()
	}
	return p.client.SRem(ctx, onlineDriversKey, driverID.String()).Err()
}

// IsOnline reports driver availability. Redis errors read as offline;
// a driver who cannot be confirmed available just misses one broadcast.
func (p *DriverPresence) IsOnline(ctx context.Context, driverID uuid.UUID) bool {
	ok, err := p.client.SIsMember(ctx, onlineDriversKey, driverID.String()).Result()
	if err != nil {
		return false
	}
	return ok
}
