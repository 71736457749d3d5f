package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/commercekit/orderflow/internal/order/domain"
	"github.com/commercekit/orderflow/pkg/eventbus"
	"github.com/commercekit/orderflow/pkg/tracing"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS orders (
			id               UUID PRIMARY KEY,
			customer_id      TEXT NOT NULL,
			total_cents      BIGINT NOT NULL,
			state            TEXT NOT NULL,
			shipping_address TEXT NOT NULL DEFAULT '',
			contact          TEXT NOT NULL DEFAULT '',
			payment_method   TEXT NOT NULL DEFAULT '',
			payment_ref      TEXT NOT NULL DEFAULT '',
			rejection_reason TEXT NOT NULL DEFAULT '',
			created_at       TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS orders_customer_created_idx ON orders (customer_id, created_at);
		CREATE INDEX IF NOT EXISTS orders_state_updated_idx ON orders (state, updated_at);

		CREATE TABLE IF NOT EXISTS order_items (
			order_id         UUID NOT NULL REFERENCES orders (id),
			product_id       TEXT NOT NULL,
			quantity         BIGINT NOT NULL CHECK (quantity > 0),
			unit_price_cents BIGINT NOT NULL CHECK (unit_price_cents >= 0),
			PRIMARY KEY (order_id, product_id)
		);

		CREATE TABLE IF NOT EXISTS outbox (
			id             BIGSERIAL PRIMARY KEY,
			event_id       UUID NOT NULL UNIQUE,
			topic          TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			aggregate_id   TEXT NOT NULL,
			type           TEXT NOT NULL,
			payload        JSONB NOT NULL,
			traceparent    TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			status         TEXT NOT NULL DEFAULT 'pending',
			retry_count    INT NOT NULL DEFAULT 0,
			last_error     TEXT,
			locked_by      TEXT,
			locked_until   TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS outbox_pending_idx ON outbox (status, created_at)
			WHERE status IN ('pending', 'failed');
	`)
	if err != nil {
		return fmt.Errorf("ensure orders schema: %w", err)
	}
	return nil
}

func (r *Repository) Save(ctx context.Context, o *domain.Order) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return saveOrder(ctx, tx, o)
	})
}

// SaveWithEvent writes the order state and the outgoing event in one
// transaction. The event row is picked up by the outbox relay, so the
// state change and its announcement commit or roll back together.
func (r *Repository) SaveWithEvent(ctx context.Context, o *domain.Order, topic string, env eventbus.Envelope) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := saveOrder(ctx, tx, o); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO outbox (event_id, topic, aggregate_type, aggregate_id, type, payload, traceparent, created_at)
			VALUES ($1, $2, 'order', $3, $4, $5, $6, $7)
		`, env.EventID, topic, o.ID, env.EventType, []byte(env.Payload), tracing.Traceparent(ctx), env.OccurredAt)
		if err != nil {
			return fmt.Errorf("insert outbox row for order %s: %w", o.ID, err)
		}
		return nil
	})
}

func saveOrder(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO orders (id, customer_id, total_cents, state, shipping_address, contact,
			payment_method, payment_ref, rejection_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			payment_ref = EXCLUDED.payment_ref,
			rejection_reason = EXCLUDED.rejection_reason,
			updated_at = EXCLUDED.updated_at
	`, o.ID, o.CustomerID, o.TotalCents, o.State, o.ShippingAddress, o.Contact,
		o.PaymentMethod, o.PaymentRef, o.RejectionReason, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}

	// Line items are immutable after creation.
	for _, it := range o.Items {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price_cents)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (order_id, product_id) DO NOTHING
		`, o.ID, it.ProductID, it.Quantity, it.UnitPriceCents)
		if err != nil {
			return fmt.Errorf("save order item %s/%s: %w", o.ID, it.ProductID, err)
		}
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*domain.Order, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, customer_id, total_cents, state, shipping_address, contact,
			payment_method, payment_ref, rejection_reason, created_at, updated_at
		FROM orders WHERE id = $1
	`, id)

	var o domain.Order
	err := row.Scan(&o.ID, &o.CustomerID, &o.TotalCents, &o.State, &o.ShippingAddress, &o.Contact,
		&o.PaymentMethod, &o.PaymentRef, &o.RejectionReason, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT product_id, quantity, unit_price_cents
		FROM order_items WHERE order_id = $1 ORDER BY product_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get order items %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.UnitPriceCents); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

// RecentTotals feeds the fraud velocity rule.
func (r *Repository) RecentTotals(ctx context.Context, customerID string, since time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT total_cents FROM orders
		WHERE customer_id = $1 AND created_at >= $2
	`, customerID, since)
	if err != nil {
		return nil, fmt.Errorf("recent totals for %s: %w", customerID, err)
	}
	defer rows.Close()

	var totals []int64
	for rows.Next() {
		var t int64
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// ListStuck returns orders whose saga stalled in a non-terminal state.
func (r *Repository) ListStuck(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM orders
		WHERE state IN ('CREATED', 'STOCK_CHECKED', 'RESERVED', 'PAYMENT_AUTHORIZED', 'COMPENSATING')
			AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stuck orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
