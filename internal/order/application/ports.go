package application

import (
	"context"
	"time"

	"github.com/commercekit/orderflow/internal/order/domain"
)

// Saga is the placement coordinator as seen from the API layer.
type Saga interface {
	Place(ctx context.Context, o *domain.Order) error
	Resume(ctx context.Context, orderID string) error
}

type Reader interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
}

// StuckLister finds orders whose saga stalled in a non-terminal state,
// usually because a previous instance died mid-placement.
type StuckLister interface {
	ListStuck(ctx context.Context, olderThan time.Time, limit int) ([]string, error)
}
