package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/commercekit/orderflow/internal/orchestrator/domain"
)

type SagaLog struct {
	pool *pgxpool.Pool
}

func NewSagaLog(pool *pgxpool.Pool) *SagaLog {
	return &SagaLog{pool: pool}
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS saga_log (
			saga_id     UUID NOT NULL,
			seq         INT NOT NULL,
			step        TEXT NOT NULL,
			outcome     TEXT NOT NULL,
			detail      TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (saga_id, seq)
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure saga_log schema: %w", err)
	}
	return nil
}

func (l *SagaLog) Append(ctx context.Context, entry domain.LogEntry) error {
	// The (saga_id, seq) primary key makes a duplicate append from a
	// replayed step a hard error rather than a silent double entry.
	_, err := l.pool.Exec(ctx, `
		INSERT INTO saga_log (saga_id, seq, step, outcome, detail, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.SagaID, entry.Seq, entry.Step, entry.Outcome, entry.Detail, entry.RecordedAt)
	if err != nil {
		return fmt.Errorf("append saga log for %s: %w", entry.SagaID, err)
	}
	return nil
}

func (l *SagaLog) List(ctx context.Context, sagaID string) ([]domain.LogEntry, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT saga_id, seq, step, outcome, detail, recorded_at
		FROM saga_log
		WHERE saga_id = $1
		ORDER BY seq
	`, sagaID)
	if err != nil {
		return nil, fmt.Errorf("list saga log for %s: %w", sagaID, err)
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		if err := rows.Scan(&e.SagaID, &e.Seq, &e.Step, &e.Outcome, &e.Detail, &e.RecordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
