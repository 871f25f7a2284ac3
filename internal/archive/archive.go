package archive

import (
	"context"
	"time"

	"github.com/farebid/dispatch/internal/domain/chat"
	"github.com/farebid/dispatch/internal/domain/request"
	"github.com/farebid/dispatch/internal/domain/ride"
	"github.com/farebid/dispatch/internal/events"
	"github.com/farebid/dispatch/pkg/logger"
)

// Stream event tags for downstream consumers of the Kafka topic
const (
	typeRequestRecord = events.Type("archive.ride_request")
	typeRideRecord    = events.Type("archive.ride")
)

// Archive fans terminal records out to PostgreSQL and the Kafka stream.
// Every method detaches from the caller: a dispatch state transition
// never waits on storage, and failures are logged here.
type Archive struct {
	store    *Store
	producer *Producer
	logger   *logger.Logger
	timeout  time.Duration
}

// New creates an archive. The producer may be nil when no brokers are
// configured; rows are still written to PostgreSQL.
func New(store *Store, producer *Producer, log *logger.Logger) *Archive {
	return &Archive{
		store:    store,
		producer: producer,
		logger:   log,
		timeout:  5 * time.Second,
	}
}

// ArchiveRequest persists a request's terminal record
func (a *Archive) ArchiveRequest(ctx context.Context, r *request.Request) {
	snapshot := *r
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.store.SaveRequest(ctx, &snapshot); err != nil {
			a.logger.Error("Failed to archive ride request", logger.Err(err))
		}
		if a.producer != nil {
			if err := a.producer.Publish(ctx, snapshot.ID.String(), events.New(typeRequestRecord, snapshot)); err != nil {
				a.logger.Error("Failed to publish request record", logger.Err(err))
			}
		}
	}()
}

// ArchiveRide persists a ride's terminal record. The pickup code never
// leaves the dispatch core.
func (a *Archive) ArchiveRide(ctx context.Context, r *ride.Ride) {
	snapshot := *r
	snapshot.PickupCode = ""
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.store.SaveRide(ctx, &snapshot); err != nil {
			a.logger.Error("Failed to archive ride", logger.Err(err))
		}
		if a.producer != nil {
			if err := a.producer.Publish(ctx, snapshot.ID.String(), events.New(typeRideRecord, snapshot)); err != nil {
				a.logger.Error("Failed to publish ride record", logger.Err(err))
			}
		}
	}()
}

// ArchiveMessages persists a closed channel's message history
func (a *Archive) ArchiveMessages(ctx context.Context, msgs []*chat.Message) {
	if len(msgs) == 0 {
		return
	}
	copied := make([]*chat.Message, len(msgs))
	copy(copied, msgs)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.store.SaveMessages(ctx, copied); err != nil {
			a.logger.Error("Failed to archive chat messages", logger.Err(err))
		}
	}()
}
