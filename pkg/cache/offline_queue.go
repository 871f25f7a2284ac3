package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// OfflineQueue stores undelivered push events per identity in a Redis
// list. Events expire after TTL and the list is capped so a recipient
// who never returns cannot grow memory without bound.
type OfflineQueue struct {
	client *redis.Client
	ttl    time.Duration
	max    int64
}

// NewOfflineQueue creates a queue with the given retention settings
func NewOfflineQueue(client *redis.Client, ttl time.Duration, max int) *OfflineQueue {
	return &OfflineQueue{
		client: client,
		ttl:    ttl,
		max:    int64(max),
	}
}

func (q *OfflineQueue) key(identityID uuid.UUID) string {
	return fmt.Sprintf("offline:%s", identityID.String())
}

// Push appends an event to the identity's queue, oldest first
func (q *OfflineQueue) Push(ctx context.Context, identityID uuid.UUID, data []byte) error {
	key := q.key(identityID)
	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -q.max, -1)
	pipe.Expire(ctx, key, q.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Drain returns and removes everything queued for the identity
func (q *OfflineQueue) Drain(ctx context.Context, identityID uuid.UUID) ([][]byte, error) {
	key := q.key(identityID)
	pipe := q.client.TxPipeline()
	rangeCmd := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	items, err := rangeCmd.Result()
	if err != nil {
		return nil, err
	}

	out := make([][]byte, 0, len(items))
	for _, item := range items {
		out = append(out, []byte(item))
	}
	return out, nil
}
