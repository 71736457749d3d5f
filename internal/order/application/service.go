package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/commercekit/orderflow/internal/order/domain"
)

type ItemInput struct {
	ProductID      string
	Quantity       int64
	UnitPriceCents int64
}

type PlaceOrderCommand struct {
	CustomerID      string
	Items           []ItemInput
	ShippingAddress string
	Contact         string
	PaymentMethod   string
}

// Service is the API-facing entry point: it validates the command into an
// Order aggregate and hands it to the saga coordinator, which runs the
// placement to a terminal state before returning.
type Service struct {
	log    *slog.Logger
	saga   Saga
	orders Reader
	stuck  StuckLister
}

func NewService(log *slog.Logger, saga Saga, orders Reader, stuck StuckLister) *Service {
	return &Service{log: log, saga: saga, orders: orders, stuck: stuck}
}

func (s *Service) Place(ctx context.Context, cmd PlaceOrderCommand) (*domain.Order, error) {
	items := make([]domain.Item, 0, len(cmd.Items))
	for _, it := range cmd.Items {
		items = append(items, domain.Item{
			ProductID:      it.ProductID,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
		})
	}

	o, err := domain.New(cmd.CustomerID, items, cmd.ShippingAddress, cmd.Contact, cmd.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if err := s.saga.Place(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) Track(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.Get(ctx, orderID)
}

// ResumeStuck sweeps orders stranded in a non-terminal state longer than
// olderThan and replays each saga from its log. Called periodically by the
// server; safe to run concurrently with fresh placements because every
// side effect is idempotent.
func (s *Service) ResumeStuck(ctx context.Context, olderThan time.Duration, limit int) {
	if s.stuck == nil {
		return
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	ids, err := s.stuck.ListStuck(ctx, cutoff, limit)
	if err != nil {
		s.log.Error("listing stuck orders failed", "err", err)
		return
	}
	for _, id := range ids {
		if err := s.saga.Resume(ctx, id); err != nil {
			s.log.Error("resume failed", "order_id", id, "err", err)
		}
	}
}
