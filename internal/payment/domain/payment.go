package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("payment: not found")
	ErrInvalidAmount     = errors.New("payment: amount must be greater than zero")
	ErrInvalidTransition = errors.New("payment: invalid status transition")
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusCaptured Status = "CAPTURED"
	StatusDeclined Status = "DECLINED"
	StatusRefunded Status = "REFUNDED"
)

// Record tracks one authorization attempt for an order. Amount is
// immutable after creation; the status machine is strictly linear:
// PENDING -> CAPTURED -> REFUNDED, or PENDING -> DECLINED.
type Record struct {
	ID            string
	OrderID       string
	AmountCents   int64
	Method        string
	Status        Status
	ProviderRef   string
	DeclineReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewRecord(orderID string, amountCents int64, method string) (*Record, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	now := time.Now().UTC()
	return &Record{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		AmountCents: amountCents,
		Method:      method,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (r *Record) Capture(providerRef string) error {
	if r.Status != StatusPending {
		return ErrInvalidTransition
	}
	r.Status = StatusCaptured
	r.ProviderRef = providerRef
	r.touch()
	return nil
}

func (r *Record) Decline(reason string) error {
	if r.Status != StatusPending {
		return ErrInvalidTransition
	}
	r.Status = StatusDeclined
	r.DeclineReason = reason
	r.touch()
	return nil
}

// Refund is only reachable from CAPTURED; it is the compensation edge.
func (r *Record) Refund() error {
	if r.Status != StatusCaptured {
		return ErrInvalidTransition
	}
	r.Status = StatusRefunded
	r.touch()
	return nil
}

func (r *Record) touch() {
	r.UpdatedAt = time.Now().UTC()
}
