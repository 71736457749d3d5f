package domain

import (
	"context"
	"errors"
)

// ErrRefundFailed is returned by a gateway when the provider rejects the
// refund; surfaced for operator reconciliation, never auto-retried past
// the bounded policy.
var ErrRefundFailed = errors.New("payment: refund failed")

type AuthOutcome string

const (
	OutcomeAuthorized  AuthOutcome = "AUTHORIZED"
	OutcomeDeclined    AuthOutcome = "DECLINED"
	OutcomeUnavailable AuthOutcome = "UNAVAILABLE"
)

type AuthRequest struct {
	OrderID        string
	AmountCents    int64
	Method         string
	IdempotencyKey string
}

type AuthResult struct {
	Outcome AuthOutcome
	Ref     string
	Reason  string
}

// Gateway is the external payment provider. A transport error from
// Authorize is equivalent to OutcomeUnavailable; Declined is a business
// answer, not an error.
type Gateway interface {
	Authorize(ctx context.Context, req AuthRequest) (AuthResult, error)
	Refund(ctx context.Context, providerRef string, amountCents int64) error
}
