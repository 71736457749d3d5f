package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/commercekit/orderflow/internal/stock/application"
	"github.com/commercekit/orderflow/internal/stock/domain"
)

const uniqueViolation = "23505"

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS stock_levels (
			product_id TEXT PRIMARY KEY,
			available  BIGINT NOT NULL CHECK (available >= 0),
			reserved   BIGINT NOT NULL CHECK (reserved >= 0),
			version    BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			CHECK (available >= reserved)
		);
		CREATE TABLE IF NOT EXISTS stock_ops (
			token      TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

func (r *Repository) Get(ctx context.Context, productID string) (*domain.Record, error) {
	var rec domain.Record
	err := r.pool.QueryRow(ctx, `SELECT product_id, available, reserved, version, updated_at FROM stock_levels WHERE product_id=$1`, productID).
		Scan(&rec.ProductID, &rec.Available, &rec.Reserved, &rec.Version, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) Create(ctx context.Context, rec *domain.Record) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO stock_levels (product_id, available, reserved, version, updated_at) VALUES ($1,$2,$3,$4,$5)`,
		rec.ProductID, rec.Available, rec.Reserved, rec.Version, rec.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// CompareAndSwap commits the counters and the idempotency token in one
// transaction; the version predicate on the UPDATE is the swap.
func (r *Repository) CompareAndSwap(ctx context.Context, rec *domain.Record, token string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if token != "" {
		if _, err := tx.Exec(ctx, `INSERT INTO stock_ops (token) VALUES ($1)`, token); err != nil {
			if isUniqueViolation(err) {
				return application.ErrTokenApplied
			}
			return err
		}
	}

	ct, err := tx.Exec(ctx, `
		UPDATE stock_levels
		SET available=$2, reserved=$3, version=version+1, updated_at=$4
		WHERE product_id=$1 AND version=$5`,
		rec.ProductID, rec.Available, rec.Reserved, time.Now().UTC(), rec.Version)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return application.ErrVersionConflict
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ application.Repository = (*Repository)(nil)
