package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrNoItems           = errors.New("order: at least one line item is required")
	ErrInvalidQuantity   = errors.New("order: quantity must be greater than zero")
	ErrInvalidPrice      = errors.New("order: unit price must be zero or greater")
	ErrConflictingPrice  = errors.New("order: conflicting unit prices for the same product")
	ErrInvalidTransition = errors.New("order: invalid state transition")
)

type State string

const (
	StateCreated           State = "CREATED"
	StateStockChecked      State = "STOCK_CHECKED"
	StateReserved          State = "RESERVED"
	StatePaymentAuthorized State = "PAYMENT_AUTHORIZED"
	StateConfirmed         State = "CONFIRMED"
	StateCompensating      State = "COMPENSATING"
	StateRejectedStock     State = "REJECTED_STOCK"
	StateRejectedPayment   State = "REJECTED_PAYMENT"
	StateRejectedFraud     State = "REJECTED_FRAUD"

	// StateNeedsAttention parks a saga that hit an invariant violation
	// (fulfill or refund failing where it cannot). Operator reconciliation
	// only; never auto-retried.
	StateNeedsAttention State = "NEEDS_ATTENTION"
)

// Reason is the machine-readable rejection code surfaced to the caller.
type Reason string

const (
	ReasonInsufficientStock  Reason = "INSUFFICIENT_STOCK"
	ReasonFraudSuspected     Reason = "FRAUD_SUSPECTED"
	ReasonPaymentDeclined    Reason = "PAYMENT_DECLINED"
	ReasonPaymentUnavailable Reason = "PAYMENT_UNAVAILABLE"

	// Operator-facing codes for parked orders.
	ReasonStockInconsistent Reason = "STOCK_INCONSISTENT"
	ReasonRefundFailed      Reason = "REFUND_FAILED"
)

var validNext = map[State]map[State]bool{
	StateCreated:           {StateStockChecked: true, StateRejectedFraud: true, StateRejectedStock: true},
	StateStockChecked:      {StateReserved: true, StateRejectedStock: true, StateNeedsAttention: true},
	StateReserved:          {StatePaymentAuthorized: true, StateCompensating: true},
	StatePaymentAuthorized: {StateConfirmed: true, StateCompensating: true, StateNeedsAttention: true},
	StateCompensating:      {StateRejectedPayment: true, StateNeedsAttention: true},
	StateConfirmed:         {},
	StateRejectedStock:     {},
	StateRejectedPayment:   {},
	StateRejectedFraud:     {},
	StateNeedsAttention:    {},
}

func CanTransition(from, to State) bool {
	return validNext[from][to]
}

func (s State) Terminal() bool {
	return len(validNext[s]) == 0
}

type Item struct {
	ProductID      string `json:"product_id"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

func (i Item) SubtotalCents() int64 {
	return i.Quantity * i.UnitPriceCents
}

// Order is created by the orchestrator at saga start and mutated only by
// it. Line items are immutable once placed; the total always equals the
// sum of line-item subtotals.
type Order struct {
	ID              string
	CustomerID      string
	Items           []Item
	TotalCents      int64
	State           State
	ShippingAddress string
	Contact         string
	PaymentMethod   string
	PaymentRef      string
	RejectionReason Reason
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// New validates the line items and builds an order in CREATED. Lines for
// the same product are merged by summing quantities, so every downstream
// per-product operation sees exactly one line per product; lines that
// repeat a product at a different unit price are rejected.
func New(customerID string, items []Item, shippingAddress, contact, paymentMethod string) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	merged := make([]Item, 0, len(items))
	index := make(map[string]int, len(items))
	var total int64
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if it.UnitPriceCents < 0 {
			return nil, ErrInvalidPrice
		}
		if i, ok := index[it.ProductID]; ok {
			if merged[i].UnitPriceCents != it.UnitPriceCents {
				return nil, ErrConflictingPrice
			}
			merged[i].Quantity += it.Quantity
		} else {
			index[it.ProductID] = len(merged)
			merged = append(merged, it)
		}
		total += it.SubtotalCents()
	}

	now := time.Now().UTC()
	return &Order{
		ID:              uuid.NewString(),
		CustomerID:      customerID,
		Items:           merged,
		TotalCents:      total,
		State:           StateCreated,
		ShippingAddress: shippingAddress,
		Contact:         contact,
		PaymentMethod:   paymentMethod,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (o *Order) TransitionTo(next State) error {
	if !CanTransition(o.State, next) {
		return ErrInvalidTransition
	}
	o.State = next
	o.touch()
	return nil
}

// Reject moves the order to a terminal rejection (or parked) state with a
// machine-readable reason.
func (o *Order) Reject(next State, reason Reason) error {
	if err := o.TransitionTo(next); err != nil {
		return err
	}
	o.RejectionReason = reason
	return nil
}

// AttachPaymentRef records the provider reference once authorization
// succeeds.
func (o *Order) AttachPaymentRef(ref string) {
	o.PaymentRef = ref
	o.touch()
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
