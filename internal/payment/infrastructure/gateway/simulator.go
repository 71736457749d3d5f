package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/commercekit/orderflow/internal/payment/domain"
)

// Simulator is an in-memory provider for local runs and tests. It declines
// amounts over a configurable limit, can be primed to report the provider
// unavailable for the next N calls, and honors idempotency keys by
// replaying the original answer.
type Simulator struct {
	mu              sync.Mutex
	declineOver     int64
	unavailableLeft int
	failRefunds     bool
	seen            map[string]domain.AuthResult
	refunded        map[string]int64
}

func NewSimulator(declineOverCents int64) *Simulator {
	return &Simulator{
		declineOver: declineOverCents,
		seen:        make(map[string]domain.AuthResult),
		refunded:    make(map[string]int64),
	}
}

// FailNext makes the next n Authorize calls report the provider unavailable.
func (s *Simulator) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailableLeft = n
}

// FailRefunds makes every Refund call fail permanently.
func (s *Simulator) FailRefunds(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefunds = fail
}

func (s *Simulator) Authorize(_ context.Context, req domain.AuthRequest) (domain.AuthResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.seen[req.IdempotencyKey]; ok {
		return prev, nil
	}
	if s.unavailableLeft > 0 {
		s.unavailableLeft--
		return domain.AuthResult{Outcome: domain.OutcomeUnavailable, Reason: "simulated outage"}, nil
	}

	var res domain.AuthResult
	if s.declineOver > 0 && req.AmountCents > s.declineOver {
		res = domain.AuthResult{Outcome: domain.OutcomeDeclined, Reason: "amount over card limit"}
	} else {
		res = domain.AuthResult{Outcome: domain.OutcomeAuthorized, Ref: "sim-" + uuid.NewString()}
	}
	s.seen[req.IdempotencyKey] = res
	return res, nil
}

func (s *Simulator) Refund(_ context.Context, providerRef string, amountCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failRefunds {
		return fmt.Errorf("%w: ref %s", domain.ErrRefundFailed, providerRef)
	}
	s.refunded[providerRef] = amountCents
	return nil
}

// Refunded reports the amount refunded against a provider ref.
func (s *Simulator) Refunded(providerRef string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	amount, ok := s.refunded[providerRef]
	return amount, ok
}
