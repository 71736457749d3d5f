// Package domain defines the saga log model: an append-only record of
// each step's outcome, durable enough to resume an interrupted placement
// without repeating completed side effects.
package domain

import "time"

// Step names one side-effecting stage of the placement saga.
type Step string

const (
	StepFraudCheck       Step = "fraud_check"
	StepReserveStock     Step = "reserve_stock"
	StepAuthorizePayment Step = "authorize_payment"
	StepFulfillStock     Step = "fulfill_stock"
	StepReleaseStock     Step = "release_stock"
	StepRefundPayment    Step = "refund_payment"
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeFailed    Outcome = "FAILED"
)

// LogEntry is one row of the saga log. Seq orders entries within a saga;
// Detail carries a short human-readable note (decline reason, product id).
type LogEntry struct {
	SagaID     string
	Seq        int
	Step       Step
	Outcome    Outcome
	Detail     string
	RecordedAt time.Time
}

// Ledger idempotency tokens are derived from the saga and product so a
// resumed saga replays the same token and the ledger drops the duplicate.
func ReserveToken(orderID, productID string) string { return "reserve:" + orderID + ":" + productID }
func ReleaseToken(orderID, productID string) string { return "release:" + orderID + ":" + productID }
func FulfillToken(orderID, productID string) string { return "fulfill:" + orderID + ":" + productID }
