package memory

import (
	"context"
	"sync"

	"github.com/commercekit/orderflow/internal/stock/application"
	"github.com/commercekit/orderflow/internal/stock/domain"
)

// Repository is the in-process stock store. The mutex guards only the
// compare and the swap; all business logic runs on clones outside it, so
// contention stays per-call and never spans I/O.
type Repository struct {
	mu      sync.Mutex
	records map[string]*domain.Record
	applied map[string]struct{}
}

func NewRepository() *Repository {
	return &Repository{
		records: make(map[string]*domain.Record),
		applied: make(map[string]struct{}),
	}
}

func (r *Repository) Get(_ context.Context, productID string) (*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec.Clone(), nil
}

func (r *Repository) Create(_ context.Context, rec *domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[rec.ProductID]; ok {
		return domain.ErrAlreadyExists
	}
	r.records[rec.ProductID] = rec.Clone()
	return nil
}

func (r *Repository) CompareAndSwap(_ context.Context, rec *domain.Record, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token != "" {
		if _, ok := r.applied[token]; ok {
			return application.ErrTokenApplied
		}
	}

	cur, ok := r.records[rec.ProductID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != rec.Version {
		return application.ErrVersionConflict
	}

	next := rec.Clone()
	next.Version++
	r.records[rec.ProductID] = next
	if token != "" {
		r.applied[token] = struct{}{}
	}
	return nil
}

var _ application.Repository = (*Repository)(nil)
