package domain

import (
	"errors"
	"testing"
)

func testItems() []Item {
	return []Item{
		{ProductID: "p1", Quantity: 2, UnitPriceCents: 1500},
		{ProductID: "p2", Quantity: 1, UnitPriceCents: 4000},
	}
}

func TestNewComputesTotal(t *testing.T) {
	o, err := New("c1", testItems(), "1 Main St", "a@example.com", "card")
	if err != nil {
		t.Fatal(err)
	}
	if o.TotalCents != 7000 {
		t.Fatalf("total = %d, want 7000", o.TotalCents)
	}
	if o.State != StateCreated {
		t.Fatalf("state = %s, want CREATED", o.State)
	}
	if o.ID == "" {
		t.Fatal("order id not assigned")
	}
}

func TestNewMergesDuplicateProductLines(t *testing.T) {
	o, err := New("c1", []Item{
		{ProductID: "p1", Quantity: 2, UnitPriceCents: 1000},
		{ProductID: "p2", Quantity: 1, UnitPriceCents: 500},
		{ProductID: "p1", Quantity: 3, UnitPriceCents: 1000},
	}, "", "", "card")
	if err != nil {
		t.Fatal(err)
	}
	if len(o.Items) != 2 {
		t.Fatalf("items = %d, want 2 after merge", len(o.Items))
	}
	if o.Items[0].ProductID != "p1" || o.Items[0].Quantity != 5 {
		t.Fatalf("merged line = %+v, want p1 quantity 5", o.Items[0])
	}
	if o.TotalCents != 5500 {
		t.Fatalf("total = %d, want 5500", o.TotalCents)
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		items   []Item
		wantErr error
	}{
		{"no items", nil, ErrNoItems},
		{"zero quantity", []Item{{ProductID: "p1", Quantity: 0, UnitPriceCents: 100}}, ErrInvalidQuantity},
		{"negative price", []Item{{ProductID: "p1", Quantity: 1, UnitPriceCents: -1}}, ErrInvalidPrice},
		{"same product at two prices", []Item{
			{ProductID: "p1", Quantity: 1, UnitPriceCents: 100},
			{ProductID: "p1", Quantity: 1, UnitPriceCents: 200},
		}, ErrConflictingPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New("c1", tt.items, "", "", "card"); !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateCreated, StateStockChecked, true},
		{StateCreated, StateRejectedFraud, true},
		{StateCreated, StateRejectedStock, true},
		{StateCreated, StateReserved, false},
		{StateStockChecked, StateReserved, true},
		{StateStockChecked, StateRejectedStock, true},
		{StateStockChecked, StateNeedsAttention, true},
		{StateStockChecked, StateConfirmed, false},
		{StateReserved, StatePaymentAuthorized, true},
		{StateReserved, StateCompensating, true},
		{StateReserved, StateConfirmed, false},
		{StatePaymentAuthorized, StateConfirmed, true},
		{StatePaymentAuthorized, StateCompensating, true},
		{StatePaymentAuthorized, StateNeedsAttention, true},
		{StateCompensating, StateRejectedPayment, true},
		{StateCompensating, StateConfirmed, false},
		{StateConfirmed, StateCompensating, false},
		{StateRejectedStock, StateCreated, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	terminal := []State{StateConfirmed, StateRejectedStock, StateRejectedPayment, StateRejectedFraud, StateNeedsAttention}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	live := []State{StateCreated, StateStockChecked, StateReserved, StatePaymentAuthorized, StateCompensating}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestTransitionToRejectsInvalid(t *testing.T) {
	o, _ := New("c1", testItems(), "", "", "card")
	if err := o.TransitionTo(StateConfirmed); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if o.State != StateCreated {
		t.Fatalf("state mutated on failed transition: %s", o.State)
	}
}

func TestRejectRecordsReason(t *testing.T) {
	o, _ := New("c1", testItems(), "", "", "card")
	if err := o.Reject(StateRejectedFraud, ReasonFraudSuspected); err != nil {
		t.Fatal(err)
	}
	if o.State != StateRejectedFraud || o.RejectionReason != ReasonFraudSuspected {
		t.Fatalf("got state=%s reason=%s", o.State, o.RejectionReason)
	}
}
