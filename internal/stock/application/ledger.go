package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/commercekit/orderflow/internal/stock/domain"
	"github.com/commercekit/orderflow/pkg/eventbus"
)

const producerName = "stock-ledger"

// Ledger serializes conflicting updates per product through a
// compare-and-swap loop: load, mutate, swap on version, retry on conflict.
// No lock is held across I/O, so payment-gateway latency never limits
// ledger throughput.
type Ledger struct {
	log       *slog.Logger
	repo      Repository
	bus       eventbus.Publisher
	conflicts prometheus.Counter

	maxAttempts int
	baseBackoff time.Duration
}

func NewLedger(log *slog.Logger, repo Repository, bus eventbus.Publisher, conflicts prometheus.Counter) *Ledger {
	return &Ledger{
		log:         log,
		repo:        repo,
		bus:         bus,
		conflicts:   conflicts,
		maxAttempts: 5,
		baseBackoff: 2 * time.Millisecond,
	}
}

// Onboard creates the record for a new product. Records are never deleted.
func (l *Ledger) Onboard(ctx context.Context, productID string, initial int64) error {
	rec, err := domain.NewRecord(productID, initial)
	if err != nil {
		return err
	}
	if err := l.repo.Create(ctx, rec); err != nil {
		return err
	}
	l.publish(ctx, rec)
	return nil
}

// Reserve holds qty against an in-flight order. Succeeds iff
// available-reserved >= qty at decision time.
func (l *Ledger) Reserve(ctx context.Context, productID string, qty int64, token string) error {
	return l.apply(ctx, productID, token, func(r *domain.Record) error { return r.Reserve(qty) })
}

// Release returns a reservation to the open pool. Releasing more than is
// reserved indicates a caller bug and is not retried.
func (l *Ledger) Release(ctx context.Context, productID string, qty int64, token string) error {
	return l.apply(ctx, productID, token, func(r *domain.Record) error { return r.Release(qty) })
}

// Fulfill converts a reservation into a permanent decrement.
func (l *Ledger) Fulfill(ctx context.Context, productID string, qty int64, token string) error {
	return l.apply(ctx, productID, token, func(r *domain.Record) error { return r.Fulfill(qty) })
}

// Restock adds physical stock.
func (l *Ledger) Restock(ctx context.Context, productID string, qty int64, token string) error {
	return l.apply(ctx, productID, token, func(r *domain.Record) error { return r.Restock(qty) })
}

// Level reports the current counters.
func (l *Ledger) Level(ctx context.Context, productID string) (*domain.Record, error) {
	return l.repo.Get(ctx, productID)
}

func (l *Ledger) apply(ctx context.Context, productID, token string, mutate func(*domain.Record) error) error {
	backoff := l.baseBackoff

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		rec, err := l.repo.Get(ctx, productID)
		if err != nil {
			return err
		}
		if err := mutate(rec); err != nil {
			// Business failure decided on the freshest counter value.
			return err
		}

		err = l.repo.CompareAndSwap(ctx, rec, token)
		switch {
		case err == nil:
			l.publish(ctx, rec)
			return nil
		case errors.Is(err, ErrTokenApplied):
			l.log.Info("idempotent replay skipped", "product_id", productID, "token", token)
			return nil
		case errors.Is(err, ErrVersionConflict):
			if l.conflicts != nil {
				l.conflicts.Inc()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff + time.Duration(rand.Int63n(int64(backoff)))):
			}
			backoff *= 2
		default:
			return err
		}
	}

	l.log.Warn("stock update contention", "product_id", productID, "attempts", l.maxAttempts)
	return fmt.Errorf("%w: product %s", domain.ErrContention, productID)
}

func (l *Ledger) publish(ctx context.Context, rec *domain.Record) {
	if l.bus == nil {
		return
	}
	env, err := eventbus.NewEnvelope(domain.EventLevelChanged, rec.ProductID, producerName, domain.NewLevelChanged(rec))
	if err != nil {
		l.log.Error("level change marshal failed", "product_id", rec.ProductID, "err", err)
		return
	}
	if err := l.bus.Publish(ctx, domain.TopicLevelChanged, env); err != nil {
		// Best-effort: the counters themselves are the source of truth.
		l.log.Error("level change publish failed", "product_id", rec.ProductID, "err", err)
	}
}
