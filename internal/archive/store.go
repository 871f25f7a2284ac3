package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/farebid/dispatch/internal/domain/chat"
	"github.com/farebid/dispatch/internal/domain/request"
	"github.com/farebid/dispatch/internal/domain/ride"
	"github.com/google/uuid"
)

// Store writes terminal ride records to PostgreSQL for the read-only
// catalog and dashboard surfaces. The dispatch core never reads these
// rows back for its own decisions; in-flight state lives in memory.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open connection pool
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveRequest upserts a request's terminal record
func (s *Store) SaveRequest(ctx context.Context, r *request.Request) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ride_requests (
			id, rider_id, status,
			pickup_latitude, pickup_longitude, pickup_address,
			dropoff_latitude, dropoff_longitude, dropoff_address,
			bidding_deadline, requested_at, cancelled_at, cancelled_by, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			cancelled_at = EXCLUDED.cancelled_at,
			cancelled_by = EXCLUDED.cancelled_by,
			updated_at = EXCLUDED.updated_at
	`, r.ID, r.RiderID, r.Status,
		r.Pickup.Latitude, r.Pickup.Longitude, r.Pickup.Address,
		r.Destination.Latitude, r.Destination.Longitude, r.Destination.Address,
		r.BiddingDeadline, r.RequestedAt, r.CancelledAt, r.CancelledBy, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("archive request %s: %w", r.ID, err)
	}
	return nil
}

// SaveRide upserts an active ride's terminal record
func (s *Store) SaveRide(ctx context.Context, r *ride.Ride) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rides (
			id, request_id, bid_id, rider_id, driver_id,
			fare, code_attempts, status,
			matched_at, started_at, completed_at, cancelled_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			code_attempts = EXCLUDED.code_attempts,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			cancelled_at = EXCLUDED.cancelled_at,
			updated_at = EXCLUDED.updated_at
	`, r.ID, r.RequestID, r.BidID, r.RiderID, r.DriverID,
		r.Fare, r.CodeAttempts, r.Status,
		r.MatchedAt, r.StartedAt, r.CompletedAt, r.CancelledAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("archive ride %s: %w", r.ID, err)
	}
	return nil
}

// SaveMessages inserts a closed channel's messages in one transaction
func (s *Store) SaveMessages(ctx context.Context, msgs []*chat.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive messages: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chat_messages (id, channel_id, sender_id, sequence, body, state, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("archive messages: %w", err)
	}
	defer stmt.Close()

	for _, msg := range msgs {
		if _, err := stmt.ExecContext(ctx, msg.ID, msg.ChannelID, msg.SenderID, msg.Sequence, msg.Body, msg.State, msg.SentAt); err != nil {
			return fmt.Errorf("archive message %s: %w", msg.ID, err)
		}
	}
	return tx.Commit()
}

// RideRecord is one row of the ride history surface
type RideRecord struct {
	RideID      uuid.UUID  `json:"ride_id"`
	RiderID     uuid.UUID  `json:"rider_id"`
	DriverID    uuid.UUID  `json:"driver_id"`
	Fare        float64    `json:"fare"`
	Status      string     `json:"status"`
	MatchedAt   time.Time  `json:"matched_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// RideHistory lists archived rides an identity took part in, newest
// first. Display-only.
func (s *Store) RideHistory(ctx context.Context, identityID uuid.UUID, limit int) ([]RideRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rider_id, driver_id, fare, status, matched_at, completed_at, cancelled_at
		FROM rides
		WHERE rider_id = $1 OR driver_id = $1
		ORDER BY matched_at DESC
		LIMIT $2
	`, identityID, limit)
	if err != nil {
		return nil, fmt.Errorf("ride history for %s: %w", identityID, err)
	}
	defer rows.Close()

	var records []RideRecord
	for rows.Next() {
		var rec RideRecord
		if err := rows.Scan(&rec.RideID, &rec.RiderID, &rec.DriverID, &rec.Fare, &rec.Status, &rec.MatchedAt, &rec.CompletedAt, &rec.CancelledAt); err != nil {
			return nil, fmt.Errorf("ride history for %s: %w", identityID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
