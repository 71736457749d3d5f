package memory

import (
	"context"
	"sync"

	"github.com/commercekit/orderflow/internal/payment/domain"
)

type Repository struct {
	mu      sync.RWMutex
	byOrder map[string]*domain.Record
}

func NewRepository() *Repository {
	return &Repository{byOrder: make(map[string]*domain.Record)}
}

func (r *Repository) Save(_ context.Context, rec *domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *rec
	r.byOrder[rec.OrderID] = &clone
	return nil
}

func (r *Repository) GetByOrder(_ context.Context, orderID string) (*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byOrder[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}
