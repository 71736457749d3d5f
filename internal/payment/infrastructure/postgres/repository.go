package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/commercekit/orderflow/internal/payment/domain"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			id             UUID PRIMARY KEY,
			order_id       UUID NOT NULL,
			amount_cents   BIGINT NOT NULL CHECK (amount_cents > 0),
			method         TEXT NOT NULL,
			status         TEXT NOT NULL,
			provider_ref   TEXT NOT NULL DEFAULT '',
			decline_reason TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS payments_order_id_idx ON payments (order_id);
	`)
	if err != nil {
		return fmt.Errorf("ensure payments schema: %w", err)
	}
	return nil
}

func (r *Repository) Save(ctx context.Context, rec *domain.Record) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payments (id, order_id, amount_cents, method, status, provider_ref, decline_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			provider_ref = EXCLUDED.provider_ref,
			decline_reason = EXCLUDED.decline_reason,
			updated_at = EXCLUDED.updated_at
	`, rec.ID, rec.OrderID, rec.AmountCents, rec.Method, rec.Status, rec.ProviderRef, rec.DeclineReason, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save payment %s: %w", rec.ID, err)
	}
	return nil
}

func (r *Repository) GetByOrder(ctx context.Context, orderID string) (*domain.Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, order_id, amount_cents, method, status, provider_ref, decline_reason, created_at, updated_at
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, orderID)

	var rec domain.Record
	err := row.Scan(&rec.ID, &rec.OrderID, &rec.AmountCents, &rec.Method, &rec.Status,
		&rec.ProviderRef, &rec.DeclineReason, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment for order %s: %w", orderID, err)
	}
	return &rec, nil
}
