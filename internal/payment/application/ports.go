package application

import (
	"context"

	"github.com/commercekit/orderflow/internal/payment/domain"
)

type RecordRepository interface {
	Save(ctx context.Context, r *domain.Record) error
	GetByOrder(ctx context.Context, orderID string) (*domain.Record, error)
}
