package domain

import (
	"errors"
	"math"
	"time"
)

var (
	ErrNotFound          = errors.New("stock: product not found")
	ErrAlreadyExists     = errors.New("stock: product already onboarded")
	ErrInvalidQuantity   = errors.New("stock: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("stock: insufficient stock")
	ErrInvalidRelease    = errors.New("stock: release exceeds reserved quantity")
	ErrInvalidFulfill    = errors.New("stock: fulfill exceeds reserved quantity")
	ErrOverflow          = errors.New("stock: available quantity overflow")
	ErrContention        = errors.New("stock: conflicting updates, retries exhausted")
)

// Record is the per-product counter pair. Available counts physical stock
// minus fulfilled orders; Reserved counts stock held against in-flight
// orders. Version increments on every successful mutation and drives the
// compare-and-swap in the repositories.
//
// Invariant: Available >= Reserved >= 0.
type Record struct {
	ProductID string
	Available int64
	Reserved  int64
	Version   int64
	UpdatedAt time.Time
}

func NewRecord(productID string, initial int64) (*Record, error) {
	if initial < 0 {
		return nil, ErrInvalidQuantity
	}
	return &Record{
		ProductID: productID,
		Available: initial,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Unreserved is the quantity still open to new reservations.
func (r *Record) Unreserved() int64 { return r.Available - r.Reserved }

func (r *Record) Reserve(qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if r.Unreserved() < qty {
		return ErrInsufficientStock
	}
	r.Reserved += qty
	r.touch()
	return nil
}

func (r *Record) Release(qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if qty > r.Reserved {
		return ErrInvalidRelease
	}
	r.Reserved -= qty
	r.touch()
	return nil
}

// Fulfill converts a reservation into a permanent decrement.
func (r *Record) Fulfill(qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if qty > r.Reserved {
		return ErrInvalidFulfill
	}
	r.Reserved -= qty
	r.Available -= qty
	r.touch()
	return nil
}

func (r *Record) Restock(qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if math.MaxInt64-r.Available < qty {
		return ErrOverflow
	}
	r.Available += qty
	r.touch()
	return nil
}

func (r *Record) touch() {
	r.UpdatedAt = time.Now().UTC()
}

func (r *Record) Clone() *Record {
	c := *r
	return &c
}
