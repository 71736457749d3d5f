package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/commercekit/orderflow/internal/payment/domain"
	"github.com/commercekit/orderflow/pkg/retry"
)

var errUnavailable = errors.New("payment: gateway unavailable")

// Service wraps the gateway with the shared bounded-retry policy and keeps
// the PaymentRecord in step with the provider's answers. Unavailable (and
// per-attempt timeout) is retried; Declined is terminal for the attempt.
type Service struct {
	log     *slog.Logger
	gateway domain.Gateway
	repo    RecordRepository
	policy  retry.Policy
	timeout time.Duration
}

func NewService(log *slog.Logger, gateway domain.Gateway, repo RecordRepository) *Service {
	return &Service{
		log:     log,
		gateway: gateway,
		repo:    repo,
		policy:  retry.Default(),
		timeout: 5 * time.Second,
	}
}

// Authorize attempts to capture the order total. The idempotency key is
// derived from the order id so a crash-resume replay cannot double-charge.
func (s *Service) Authorize(ctx context.Context, orderID string, amountCents int64, method string) (domain.AuthResult, error) {
	rec, err := domain.NewRecord(orderID, amountCents, method)
	if err != nil {
		return domain.AuthResult{}, err
	}
	if err := s.repo.Save(ctx, rec); err != nil {
		return domain.AuthResult{}, err
	}

	req := domain.AuthRequest{
		OrderID:        orderID,
		AmountCents:    amountCents,
		Method:         method,
		IdempotencyKey: "auth:" + orderID,
	}

	var last domain.AuthResult
	err = s.policy.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		res, err := s.gateway.Authorize(attemptCtx, req)
		if err != nil {
			// Transport failure or timeout is indistinguishable from an
			// unavailable provider.
			s.log.Warn("authorize attempt failed", "order_id", orderID, "err", err)
			last = domain.AuthResult{Outcome: domain.OutcomeUnavailable, Reason: err.Error()}
			return errUnavailable
		}

		last = res
		switch res.Outcome {
		case domain.OutcomeAuthorized:
			return nil
		case domain.OutcomeDeclined:
			return retry.Permanent(fmt.Errorf("payment declined: %s", res.Reason))
		default:
			return errUnavailable
		}
	})
	if err != nil && errors.Is(err, context.Canceled) {
		return domain.AuthResult{}, err
	}

	switch last.Outcome {
	case domain.OutcomeAuthorized:
		if err := rec.Capture(last.Ref); err != nil {
			return domain.AuthResult{}, err
		}
	case domain.OutcomeDeclined:
		if err := rec.Decline(last.Reason); err != nil {
			return domain.AuthResult{}, err
		}
	default:
		if err := rec.Decline("provider unavailable"); err != nil {
			return domain.AuthResult{}, err
		}
		last.Outcome = domain.OutcomeUnavailable
	}
	if err := s.repo.Save(ctx, rec); err != nil {
		return domain.AuthResult{}, err
	}
	return last, nil
}

// Refund compensates a captured payment. It refuses to run for an order
// whose record never reached CAPTURED, so a refund can only reference a
// previously authorized transaction.
func (s *Service) Refund(ctx context.Context, orderID string) error {
	rec, err := s.repo.GetByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if rec.Status != domain.StatusCaptured {
		return fmt.Errorf("%w: order %s has status %s", domain.ErrInvalidTransition, orderID, rec.Status)
	}

	err = s.policy.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		err := s.gateway.Refund(attemptCtx, rec.ProviderRef, rec.AmountCents)
		if errors.Is(err, domain.ErrRefundFailed) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		s.log.Error("refund failed", "order_id", orderID, "ref", rec.ProviderRef, "err", err)
		return err
	}

	if err := rec.Refund(); err != nil {
		return err
	}
	return s.repo.Save(ctx, rec)
}
