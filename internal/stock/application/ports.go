package application

import (
	"context"
	"errors"

	"github.com/commercekit/orderflow/internal/stock/domain"
)

var (
	// ErrVersionConflict means another writer updated the record between
	// Get and CompareAndSwap; the ledger reloads and retries.
	ErrVersionConflict = errors.New("stock: version conflict")

	// ErrTokenApplied means this idempotency token already committed; the
	// ledger treats the operation as already done.
	ErrTokenApplied = errors.New("stock: idempotency token already applied")
)

// Repository persists stock records with optimistic concurrency.
// CompareAndSwap must write rec and record token in one atomic unit, iff
// the stored version still equals rec.Version; the stored version is then
// incremented.
type Repository interface {
	Get(ctx context.Context, productID string) (*domain.Record, error)
	Create(ctx context.Context, rec *domain.Record) error
	CompareAndSwap(ctx context.Context, rec *domain.Record, token string) error
}
