package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/commercekit/orderflow/pkg/outbox"
)

// OutboxStore claims and settles outbox rows for the relay. LockBatch uses
// FOR UPDATE SKIP LOCKED so concurrent relay instances never fight over
// the same rows; a crashed relay's claim expires with its lease.
type OutboxStore struct {
	pool *pgxpool.Pool
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE outbox SET
			status = 'in_progress',
			locked_by = $1,
			locked_until = now() + make_interval(secs => $2)
		WHERE id IN (
			SELECT id FROM outbox
			WHERE (status IN ('pending', 'failed') AND retry_count < 10)
				OR (status = 'in_progress' AND locked_until < now())
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_id, topic, aggregate_type, aggregate_id, type, payload,
			traceparent, created_at, status, retry_count, last_error
	`, relayID, lease.Seconds(), batchSize)
	if err != nil {
		return nil, fmt.Errorf("lock outbox batch: %w", err)
	}
	defer rows.Close()

	var events []outbox.Event
	for rows.Next() {
		var e outbox.Event
		if err := rows.Scan(&e.ID, &e.EventID, &e.Topic, &e.AggregateType, &e.AggregateID, &e.Type,
			&e.Payload, &e.Traceparent, &e.CreatedAt, &e.Status, &e.RetryCount, &e.LastError); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox SET status = 'sent', locked_by = NULL, locked_until = NULL
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox SET
			status = 'failed',
			retry_count = retry_count + 1,
			last_error = $2,
			locked_by = NULL,
			locked_until = NULL
		WHERE id = $1
	`, id, errMsg)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}
