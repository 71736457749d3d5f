package application

import (
	"context"

	orderdomain "github.com/commercekit/orderflow/internal/order/domain"
	"github.com/commercekit/orderflow/internal/orchestrator/domain"
	paymentdomain "github.com/commercekit/orderflow/internal/payment/domain"
	stockdomain "github.com/commercekit/orderflow/internal/stock/domain"
	"github.com/commercekit/orderflow/pkg/eventbus"
)

// OrderRepository persists order state. SaveWithEvent stores the order and
// the outgoing event atomically (outbox row in the same transaction), so a
// terminal state and its announcement cannot diverge.
type OrderRepository interface {
	Save(ctx context.Context, o *orderdomain.Order) error
	SaveWithEvent(ctx context.Context, o *orderdomain.Order, topic string, env eventbus.Envelope) error
	Get(ctx context.Context, id string) (*orderdomain.Order, error)
}

// StockLedger is the slice of the ledger the saga needs. Every mutation
// carries an idempotency token so replays are dropped.
type StockLedger interface {
	Level(ctx context.Context, productID string) (*stockdomain.Record, error)
	Reserve(ctx context.Context, productID string, qty int64, token string) error
	Release(ctx context.Context, productID string, qty int64, token string) error
	Fulfill(ctx context.Context, productID string, qty int64, token string) error
}

type Payments interface {
	Authorize(ctx context.Context, orderID string, amountCents int64, method string) (paymentdomain.AuthResult, error)
	Refund(ctx context.Context, orderID string) error
}

// SagaLog is the append-only step journal backing crash recovery.
type SagaLog interface {
	Append(ctx context.Context, entry domain.LogEntry) error
	List(ctx context.Context, sagaID string) ([]domain.LogEntry, error)
}

type FraudEvaluator interface {
	Evaluate(ctx context.Context, o *orderdomain.Order) (bool, error)
}
