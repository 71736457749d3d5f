// Package fraud screens orders before any stock or payment side effects.
// The rules are deliberately simple and deterministic: amount and item
// caps, a velocity check over recent high-value orders, and deny lists
// for addresses and customers.
package fraud

import (
	"context"
	"log/slog"
	"strings"
	"time"

	orderdomain "github.com/commercekit/orderflow/internal/order/domain"
)

// History exposes the order totals a customer placed recently, for the
// velocity rule.
type History interface {
	RecentTotals(ctx context.Context, customerID string, since time.Time) ([]int64, error)
}

type Config struct {
	// MaxTotalCents rejects any single order above this total.
	MaxTotalCents int64
	// MaxItemCount rejects orders with more than this many units.
	MaxItemCount int64
	// HighValueCents and HighValueLimit drive the velocity rule: an order
	// is suspect when the customer already placed HighValueLimit or more
	// orders above HighValueCents inside Window.
	HighValueCents int64
	HighValueLimit int
	Window         time.Duration

	FlaggedAddresses []string
	FlaggedCustomers []string
}

func DefaultConfig() Config {
	return Config{
		MaxTotalCents:    10_000_00,
		MaxItemCount:     10,
		HighValueCents:   5_000_00,
		HighValueLimit:   3,
		Window:           time.Hour,
		FlaggedAddresses: []string{"123 Fraud St", "456 Fake Ave"},
	}
}

type Evaluator struct {
	log     *slog.Logger
	cfg     Config
	history History
}

func NewEvaluator(log *slog.Logger, cfg Config, history History) *Evaluator {
	return &Evaluator{log: log, cfg: cfg, history: history}
}

// Evaluate reports whether the order looks fraudulent. A history lookup
// failure is returned as an error so the caller can decide; every rule hit
// is logged with the rule name.
func (e *Evaluator) Evaluate(ctx context.Context, o *orderdomain.Order) (bool, error) {
	if e.cfg.MaxTotalCents > 0 && o.TotalCents > e.cfg.MaxTotalCents {
		e.flag(o, "total_over_limit")
		return true, nil
	}

	var units int64
	for _, it := range o.Items {
		units += it.Quantity
	}
	if e.cfg.MaxItemCount > 0 && units > e.cfg.MaxItemCount {
		e.flag(o, "item_count_over_limit")
		return true, nil
	}

	for _, addr := range e.cfg.FlaggedAddresses {
		if strings.EqualFold(strings.TrimSpace(o.ShippingAddress), addr) {
			e.flag(o, "flagged_address")
			return true, nil
		}
	}
	for _, cust := range e.cfg.FlaggedCustomers {
		if o.CustomerID == cust {
			e.flag(o, "flagged_customer")
			return true, nil
		}
	}

	if e.history != nil && e.cfg.HighValueLimit > 0 {
		since := time.Now().UTC().Add(-e.cfg.Window)
		totals, err := e.history.RecentTotals(ctx, o.CustomerID, since)
		if err != nil {
			return false, err
		}
		highValue := 0
		for _, t := range totals {
			if t > e.cfg.HighValueCents {
				highValue++
			}
		}
		if highValue >= e.cfg.HighValueLimit {
			e.flag(o, "high_value_velocity")
			return true, nil
		}
	}

	return false, nil
}

func (e *Evaluator) flag(o *orderdomain.Order, rule string) {
	e.log.Warn("order flagged as suspicious",
		"order_id", o.ID,
		"customer_id", o.CustomerID,
		"rule", rule,
	)
}
