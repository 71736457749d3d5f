package domain

import (
	"errors"
	"math"
	"testing"
)

func record(t *testing.T, available, reserved int64) *Record {
	t.Helper()
	rec, err := NewRecord("p1", available)
	if err != nil {
		t.Fatal(err)
	}
	rec.Reserved = reserved
	return rec
}

func TestNewRecordRejectsNegative(t *testing.T) {
	if _, err := NewRecord("p1", -1); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("err = %v, want ErrInvalidQuantity", err)
	}
}

func TestReserve(t *testing.T) {
	tests := []struct {
		name                    string
		available, reserved, qty int64
		wantErr                 error
		wantReserved            int64
	}{
		{"takes free stock", 5, 0, 3, nil, 3},
		{"takes exactly the remainder", 5, 3, 2, nil, 5},
		{"rejects over unreserved", 5, 3, 3, ErrInsufficientStock, 3},
		{"rejects zero qty", 5, 0, 0, ErrInvalidQuantity, 0},
		{"rejects negative qty", 5, 0, -2, ErrInvalidQuantity, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record(t, tt.available, tt.reserved)
			err := rec.Reserve(tt.qty)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if rec.Reserved != tt.wantReserved {
				t.Fatalf("reserved = %d, want %d", rec.Reserved, tt.wantReserved)
			}
			if rec.Available != tt.available {
				t.Fatalf("reserve must not change available: %d", rec.Available)
			}
		})
	}
}

func TestRelease(t *testing.T) {
	rec := record(t, 5, 3)
	if err := rec.Release(2); err != nil {
		t.Fatal(err)
	}
	if rec.Reserved != 1 || rec.Available != 5 {
		t.Fatalf("got available=%d reserved=%d", rec.Available, rec.Reserved)
	}
	if err := rec.Release(2); !errors.Is(err, ErrInvalidRelease) {
		t.Fatalf("releasing more than reserved: err = %v", err)
	}
	if err := rec.Release(0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("err = %v, want ErrInvalidQuantity", err)
	}
}

func TestFulfillDecrementsBothCounters(t *testing.T) {
	rec := record(t, 5, 3)
	if err := rec.Fulfill(3); err != nil {
		t.Fatal(err)
	}
	if rec.Available != 2 || rec.Reserved != 0 {
		t.Fatalf("got available=%d reserved=%d, want 2/0", rec.Available, rec.Reserved)
	}
	if err := rec.Fulfill(1); !errors.Is(err, ErrInvalidFulfill) {
		t.Fatalf("fulfilling without reservation: err = %v", err)
	}
}

func TestRestock(t *testing.T) {
	rec := record(t, 5, 0)
	if err := rec.Restock(10); err != nil {
		t.Fatal(err)
	}
	if rec.Available != 15 {
		t.Fatalf("available = %d, want 15", rec.Available)
	}

	rec.Available = math.MaxInt64 - 1
	if err := rec.Restock(2); !errors.Is(err, ErrOverflow) {
		t.Fatalf("err = %v, want ErrOverflow", err)
	}
}

func TestInvariantHoldsThroughLifecycle(t *testing.T) {
	rec := record(t, 10, 0)
	steps := []func() error{
		func() error { return rec.Reserve(4) },
		func() error { return rec.Reserve(3) },
		func() error { return rec.Release(2) },
		func() error { return rec.Fulfill(5) },
		func() error { return rec.Restock(7) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if rec.Reserved < 0 || rec.Available < rec.Reserved {
			t.Fatalf("step %d broke invariant: available=%d reserved=%d", i, rec.Available, rec.Reserved)
		}
	}
}
