package memory

import (
	"context"
	"sync"
	"time"

	"github.com/commercekit/orderflow/internal/order/domain"
	"github.com/commercekit/orderflow/pkg/eventbus"
)

// Repository keeps orders in memory and publishes events straight to the
// bus instead of going through an outbox. Good enough for tests and local
// single-process runs; durability comes from the postgres implementation.
type Repository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	bus    eventbus.Publisher
}

func NewRepository(bus eventbus.Publisher) *Repository {
	return &Repository{orders: make(map[string]*domain.Order), bus: bus}
}

func (r *Repository) Save(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = clone(o)
	return nil
}

func (r *Repository) SaveWithEvent(ctx context.Context, o *domain.Order, topic string, env eventbus.Envelope) error {
	if err := r.Save(ctx, o); err != nil {
		return err
	}
	if r.bus == nil {
		return nil
	}
	return r.bus.Publish(ctx, topic, env)
}

func (r *Repository) Get(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(o), nil
}

func (r *Repository) RecentTotals(_ context.Context, customerID string, since time.Time) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var totals []int64
	for _, o := range r.orders {
		if o.CustomerID == customerID && !o.CreatedAt.Before(since) {
			totals = append(totals, o.TotalCents)
		}
	}
	return totals, nil
}

func (r *Repository) ListStuck(_ context.Context, olderThan time.Time, limit int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for _, o := range r.orders {
		if !o.State.Terminal() && o.UpdatedAt.Before(olderThan) {
			ids = append(ids, o.ID)
			if len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

func clone(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.Item(nil), o.Items...)
	return &c
}
