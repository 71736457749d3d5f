package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	orderdomain "github.com/commercekit/orderflow/internal/order/domain"
	"github.com/commercekit/orderflow/internal/orchestrator/domain"
	paymentdomain "github.com/commercekit/orderflow/internal/payment/domain"
	stockdomain "github.com/commercekit/orderflow/internal/stock/domain"
	"github.com/commercekit/orderflow/pkg/eventbus"
	"github.com/commercekit/orderflow/pkg/metrics"
)

const producer = "orderflow"

// Coordinator drives an order placement saga from CREATED to one terminal
// state: fraud gate, stock reservation, payment authorization, fulfillment,
// with compensation (release before refund) when payment fails. Every side
// effect is journaled to the saga log before the next step runs, so an
// interrupted saga can be resumed without repeating completed work.
type Coordinator struct {
	log      *slog.Logger
	orders   OrderRepository
	stock    StockLedger
	payments Payments
	sagaLog  SagaLog
	fraud    FraudEvaluator
	metrics  *metrics.Metrics
}

func NewCoordinator(
	log *slog.Logger,
	orders OrderRepository,
	stock StockLedger,
	payments Payments,
	sagaLog SagaLog,
	fraud FraudEvaluator,
	m *metrics.Metrics,
) *Coordinator {
	return &Coordinator{
		log:      log,
		orders:   orders,
		stock:    stock,
		payments: payments,
		sagaLog:  sagaLog,
		fraud:    fraud,
		metrics:  m,
	}
}

// Place persists the new order and runs its saga to completion.
func (c *Coordinator) Place(ctx context.Context, o *orderdomain.Order) error {
	if err := c.orders.Save(ctx, o); err != nil {
		return err
	}
	return c.run(ctx, o, nil, 1)
}

// Resume picks up an order left in a non-terminal state, replaying from
// the saga log. Completed per-product steps are skipped; the ledger and
// the payment gateway drop any duplicate side effect by idempotency token.
func (c *Coordinator) Resume(ctx context.Context, orderID string) error {
	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.State.Terminal() {
		return nil
	}

	entries, err := c.sagaLog.List(ctx, orderID)
	if err != nil {
		return err
	}
	done := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Outcome != domain.OutcomeSucceeded {
			continue
		}
		switch e.Step {
		case domain.StepReserveStock, domain.StepReleaseStock, domain.StepFulfillStock:
			// Per-product steps journal the product id in Detail.
			done[stepKey(e.Step, e.Detail)] = true
		default:
			done[stepKey(e.Step, "")] = true
		}
	}
	c.log.Info("resuming saga", "order_id", orderID, "state", o.State, "journaled_steps", len(entries))
	return c.run(ctx, o, done, len(entries)+1)
}

// run advances the order one state at a time until it parks or terminates.
func (c *Coordinator) run(ctx context.Context, o *orderdomain.Order, done map[string]bool, seq int) error {
	if done == nil {
		done = make(map[string]bool)
	}
	start := time.Now()

	for !o.State.Terminal() {
		var err error
		switch o.State {
		case orderdomain.StateCreated:
			err = c.screen(ctx, o, done, &seq)
		case orderdomain.StateStockChecked:
			err = c.reserve(ctx, o, done, &seq)
		case orderdomain.StateReserved:
			err = c.authorize(ctx, o, done, &seq)
		case orderdomain.StatePaymentAuthorized:
			err = c.fulfill(ctx, o, done, &seq)
		case orderdomain.StateCompensating:
			err = c.compensate(ctx, o, done, &seq)
		default:
			err = fmt.Errorf("saga %s stuck in unexpected state %s", o.ID, o.State)
		}
		if err != nil {
			return err
		}
	}

	c.metrics.SagaCompleted.WithLabelValues(string(o.State)).Inc()
	c.metrics.SagaDuration.Observe(time.Since(start).Seconds())
	c.log.Info("saga finished", "order_id", o.ID, "state", o.State, "reason", o.RejectionReason)
	return nil
}

// screen runs the fraud gate and the availability pre-check. Neither has
// side effects, so a fraud rejection leaves stock and payments untouched.
func (c *Coordinator) screen(ctx context.Context, o *orderdomain.Order, done map[string]bool, seq *int) error {
	if !done[stepKey(domain.StepFraudCheck, "")] {
		suspicious, err := c.fraud.Evaluate(ctx, o)
		if err != nil {
			return fmt.Errorf("fraud check for order %s: %w", o.ID, err)
		}
		if suspicious {
			if err := c.journal(ctx, o.ID, seq, domain.StepFraudCheck, domain.OutcomeFailed, "suspicious"); err != nil {
				return err
			}
			return c.finish(ctx, o, orderdomain.StateRejectedFraud, orderdomain.ReasonFraudSuspected)
		}
		if err := c.journal(ctx, o.ID, seq, domain.StepFraudCheck, domain.OutcomeSucceeded, ""); err != nil {
			return err
		}
		done[stepKey(domain.StepFraudCheck, "")] = true
	}

	for _, it := range o.Items {
		rec, err := c.stock.Level(ctx, it.ProductID)
		if errors.Is(err, stockdomain.ErrNotFound) || (err == nil && rec.Unreserved() < it.Quantity) {
			return c.finish(ctx, o, orderdomain.StateRejectedStock, orderdomain.ReasonInsufficientStock)
		}
		if err != nil {
			return err
		}
	}

	if err := o.TransitionTo(orderdomain.StateStockChecked); err != nil {
		return err
	}
	return c.orders.Save(ctx, o)
}

// reserve takes a reservation per line item. A failure releases every
// reservation taken so far before rejecting, so no partial hold survives.
func (c *Coordinator) reserve(ctx context.Context, o *orderdomain.Order, done map[string]bool, seq *int) error {
	var held []orderdomain.Item
	for _, it := range o.Items {
		key := stepKey(domain.StepReserveStock, it.ProductID)
		if done[key] {
			held = append(held, it)
			continue
		}

		err := c.stock.Reserve(ctx, it.ProductID, it.Quantity, domain.ReserveToken(o.ID, it.ProductID))
		if err != nil {
			detail := it.ProductID
			if errors.Is(err, stockdomain.ErrContention) {
				c.log.Warn("reservation lost to contention", "order_id", o.ID, "product_id", it.ProductID)
				detail += " (contention)"
			}
			if jerr := c.journal(ctx, o.ID, seq, domain.StepReserveStock, domain.OutcomeFailed, detail); jerr != nil {
				return jerr
			}
			if rerr := c.releaseHeld(ctx, o, held, done, seq); rerr != nil {
				return c.park(ctx, o, orderdomain.ReasonStockInconsistent, rerr)
			}
			return c.finish(ctx, o, orderdomain.StateRejectedStock, orderdomain.ReasonInsufficientStock)
		}

		if err := c.journal(ctx, o.ID, seq, domain.StepReserveStock, domain.OutcomeSucceeded, it.ProductID); err != nil {
			return err
		}
		done[key] = true
		held = append(held, it)
	}

	if err := o.TransitionTo(orderdomain.StateReserved); err != nil {
		return err
	}
	return c.orders.Save(ctx, o)
}

func (c *Coordinator) authorize(ctx context.Context, o *orderdomain.Order, done map[string]bool, seq *int) error {
	res, err := c.payments.Authorize(ctx, o.ID, o.TotalCents, o.PaymentMethod)
	if err != nil {
		return fmt.Errorf("authorize order %s: %w", o.ID, err)
	}

	switch res.Outcome {
	case paymentdomain.OutcomeAuthorized:
		if err := c.journal(ctx, o.ID, seq, domain.StepAuthorizePayment, domain.OutcomeSucceeded, res.Ref); err != nil {
			return err
		}
		done[stepKey(domain.StepAuthorizePayment, "")] = true
		o.AttachPaymentRef(res.Ref)
		if err := o.TransitionTo(orderdomain.StatePaymentAuthorized); err != nil {
			return err
		}
		return c.orders.Save(ctx, o)

	case paymentdomain.OutcomeDeclined:
		if err := c.journal(ctx, o.ID, seq, domain.StepAuthorizePayment, domain.OutcomeFailed, res.Reason); err != nil {
			return err
		}
		return c.beginCompensation(ctx, o, orderdomain.ReasonPaymentDeclined)

	default:
		if err := c.journal(ctx, o.ID, seq, domain.StepAuthorizePayment, domain.OutcomeFailed, "provider unavailable"); err != nil {
			return err
		}
		return c.beginCompensation(ctx, o, orderdomain.ReasonPaymentUnavailable)
	}
}

// fulfill converts each reservation into a permanent decrement. A failure
// here means the ledger contradicts the reservation the saga itself took;
// the order is parked for an operator and the captured payment is never
// touched automatically.
func (c *Coordinator) fulfill(ctx context.Context, o *orderdomain.Order, done map[string]bool, seq *int) error {
	for _, it := range o.Items {
		key := stepKey(domain.StepFulfillStock, it.ProductID)
		if done[key] {
			continue
		}

		err := c.stock.Fulfill(ctx, it.ProductID, it.Quantity, domain.FulfillToken(o.ID, it.ProductID))
		if err != nil {
			if jerr := c.journal(ctx, o.ID, seq, domain.StepFulfillStock, domain.OutcomeFailed, it.ProductID); jerr != nil {
				return jerr
			}
			return c.park(ctx, o, orderdomain.ReasonStockInconsistent, err)
		}

		if err := c.journal(ctx, o.ID, seq, domain.StepFulfillStock, domain.OutcomeSucceeded, it.ProductID); err != nil {
			return err
		}
		done[key] = true
	}

	if err := o.TransitionTo(orderdomain.StateConfirmed); err != nil {
		return err
	}
	env, err := eventbus.NewEnvelope(orderdomain.EventOrderConfirmed, o.ID, producer, orderdomain.NewOrderConfirmed(o))
	if err != nil {
		return err
	}
	return c.orders.SaveWithEvent(ctx, o, orderdomain.TopicOrderConfirmed, env)
}

// compensate undoes the saga's side effects in reverse order: release the
// stock holds first, then refund the capture if there was one. Refund runs
// only once the ledger is consistent again.
func (c *Coordinator) compensate(ctx context.Context, o *orderdomain.Order, done map[string]bool, seq *int) error {
	if err := c.releaseHeld(ctx, o, o.Items, done, seq); err != nil {
		return c.park(ctx, o, orderdomain.ReasonStockInconsistent, err)
	}

	if done[stepKey(domain.StepAuthorizePayment, "")] && !done[stepKey(domain.StepRefundPayment, "")] {
		if err := c.payments.Refund(ctx, o.ID); err != nil {
			if jerr := c.journal(ctx, o.ID, seq, domain.StepRefundPayment, domain.OutcomeFailed, err.Error()); jerr != nil {
				return jerr
			}
			return c.park(ctx, o, orderdomain.ReasonRefundFailed, err)
		}
		if err := c.journal(ctx, o.ID, seq, domain.StepRefundPayment, domain.OutcomeSucceeded, ""); err != nil {
			return err
		}
		done[stepKey(domain.StepRefundPayment, "")] = true
	}

	reason := o.RejectionReason
	if reason == "" {
		reason = orderdomain.ReasonPaymentDeclined
	}
	return c.finish(ctx, o, orderdomain.StateRejectedPayment, reason)
}

// releaseHeld releases the reservations in held that were journaled as
// taken and not yet released or fulfilled.
func (c *Coordinator) releaseHeld(ctx context.Context, o *orderdomain.Order, held []orderdomain.Item, done map[string]bool, seq *int) error {
	for _, it := range held {
		if !done[stepKey(domain.StepReserveStock, it.ProductID)] {
			continue
		}
		if done[stepKey(domain.StepReleaseStock, it.ProductID)] || done[stepKey(domain.StepFulfillStock, it.ProductID)] {
			continue
		}

		err := c.stock.Release(ctx, it.ProductID, it.Quantity, domain.ReleaseToken(o.ID, it.ProductID))
		if err != nil {
			if jerr := c.journal(ctx, o.ID, seq, domain.StepReleaseStock, domain.OutcomeFailed, it.ProductID); jerr != nil {
				return jerr
			}
			return fmt.Errorf("release %s for order %s: %w", it.ProductID, o.ID, err)
		}

		if err := c.journal(ctx, o.ID, seq, domain.StepReleaseStock, domain.OutcomeSucceeded, it.ProductID); err != nil {
			return err
		}
		done[stepKey(domain.StepReleaseStock, it.ProductID)] = true
	}
	return nil
}

// beginCompensation records the eventual rejection reason before entering
// COMPENSATING, so a crash mid-compensation resumes with it intact.
func (c *Coordinator) beginCompensation(ctx context.Context, o *orderdomain.Order, reason orderdomain.Reason) error {
	if err := o.Reject(orderdomain.StateCompensating, reason); err != nil {
		return err
	}
	return c.orders.Save(ctx, o)
}

// finish moves the order to a terminal rejection and emits the rejected
// event atomically with the state change.
func (c *Coordinator) finish(ctx context.Context, o *orderdomain.Order, state orderdomain.State, reason orderdomain.Reason) error {
	if err := o.Reject(state, reason); err != nil {
		return err
	}
	env, err := eventbus.NewEnvelope(orderdomain.EventOrderRejected, o.ID, producer, orderdomain.NewOrderRejected(o))
	if err != nil {
		return err
	}
	return c.orders.SaveWithEvent(ctx, o, orderdomain.TopicOrderRejected, env)
}

// park moves the order to NEEDS_ATTENTION. No customer-facing event is
// emitted; the order waits for operator reconciliation.
func (c *Coordinator) park(ctx context.Context, o *orderdomain.Order, reason orderdomain.Reason, cause error) error {
	c.log.Error("saga parked for operator attention",
		"order_id", o.ID, "state", o.State, "reason", reason, "err", cause)
	if err := o.Reject(orderdomain.StateNeedsAttention, reason); err != nil {
		return err
	}
	return c.orders.Save(ctx, o)
}

func (c *Coordinator) journal(ctx context.Context, sagaID string, seq *int, step domain.Step, outcome domain.Outcome, detail string) error {
	entry := domain.LogEntry{
		SagaID:     sagaID,
		Seq:        *seq,
		Step:       step,
		Outcome:    outcome,
		Detail:     detail,
		RecordedAt: time.Now().UTC(),
	}
	if err := c.sagaLog.Append(ctx, entry); err != nil {
		return fmt.Errorf("journal %s step for saga %s: %w", step, sagaID, err)
	}
	*seq++
	return nil
}

func stepKey(step domain.Step, detail string) string {
	if detail == "" {
		return string(step)
	}
	return string(step) + "/" + detail
}
