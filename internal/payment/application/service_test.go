package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/commercekit/orderflow/internal/payment/domain"
	"github.com/commercekit/orderflow/internal/payment/infrastructure/gateway"
	"github.com/commercekit/orderflow/internal/payment/infrastructure/memory"
	"github.com/commercekit/orderflow/pkg/retry"
)

func newService(gw domain.Gateway) (*Service, *memory.Repository) {
	repo := memory.NewRepository()
	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), gw, repo)
	svc.policy = retry.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
	svc.timeout = time.Second
	return svc, repo
}

func TestAuthorizeCaptures(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(gateway.NewSimulator(10_000_00))

	res, err := svc.Authorize(ctx, "o1", 5000, "card")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != domain.OutcomeAuthorized || res.Ref == "" {
		t.Fatalf("got outcome=%s ref=%q", res.Outcome, res.Ref)
	}

	rec, err := repo.GetByOrder(ctx, "o1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != domain.StatusCaptured || rec.ProviderRef != res.Ref {
		t.Fatalf("got status=%s ref=%s", rec.Status, rec.ProviderRef)
	}
}

type countingGateway struct {
	calls   int
	results []domain.AuthResult
	errs    []error
}

func (g *countingGateway) Authorize(context.Context, domain.AuthRequest) (domain.AuthResult, error) {
	i := g.calls
	g.calls++
	if i >= len(g.results) {
		i = len(g.results) - 1
	}
	var err error
	if g.errs != nil {
		err = g.errs[i]
	}
	return g.results[i], err
}

func (g *countingGateway) Refund(context.Context, string, int64) error { return nil }

func TestAuthorizeDeclinedDoesNotRetry(t *testing.T) {
	gw := &countingGateway{results: []domain.AuthResult{
		{Outcome: domain.OutcomeDeclined, Reason: "card expired"},
	}}
	svc, repo := newService(gw)

	res, err := svc.Authorize(context.Background(), "o1", 5000, "card")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != domain.OutcomeDeclined {
		t.Fatalf("outcome = %s, want DECLINED", res.Outcome)
	}
	if gw.calls != 1 {
		t.Fatalf("gateway calls = %d, want 1 (decline is permanent)", gw.calls)
	}

	rec, _ := repo.GetByOrder(context.Background(), "o1")
	if rec.Status != domain.StatusDeclined || rec.DeclineReason != "card expired" {
		t.Fatalf("got status=%s reason=%s", rec.Status, rec.DeclineReason)
	}
}

func TestAuthorizeExhaustsRetryBudgetOnUnavailable(t *testing.T) {
	gw := &countingGateway{results: []domain.AuthResult{
		{Outcome: domain.OutcomeUnavailable, Reason: "outage"},
	}}
	svc, repo := newService(gw)

	res, err := svc.Authorize(context.Background(), "o1", 5000, "card")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != domain.OutcomeUnavailable {
		t.Fatalf("outcome = %s, want UNAVAILABLE", res.Outcome)
	}
	if gw.calls != 3 {
		t.Fatalf("gateway calls = %d, want 3", gw.calls)
	}

	rec, _ := repo.GetByOrder(context.Background(), "o1")
	if rec.Status != domain.StatusDeclined {
		t.Fatalf("status = %s, want DECLINED after exhausted retries", rec.Status)
	}
}

func TestAuthorizeRecoversAfterTransientOutage(t *testing.T) {
	gw := &countingGateway{results: []domain.AuthResult{
		{Outcome: domain.OutcomeUnavailable},
		{Outcome: domain.OutcomeUnavailable},
		{Outcome: domain.OutcomeAuthorized, Ref: "ref-9"},
	}}
	svc, _ := newService(gw)

	res, err := svc.Authorize(context.Background(), "o1", 5000, "card")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != domain.OutcomeAuthorized || res.Ref != "ref-9" {
		t.Fatalf("got outcome=%s ref=%s", res.Outcome, res.Ref)
	}
	if gw.calls != 3 {
		t.Fatalf("gateway calls = %d, want 3", gw.calls)
	}
}

func TestAuthorizeTreatsTransportErrorAsUnavailable(t *testing.T) {
	boom := errors.New("connection refused")
	gw := &countingGateway{
		results: []domain.AuthResult{{}},
		errs:    []error{boom},
	}
	svc, _ := newService(gw)

	res, err := svc.Authorize(context.Background(), "o1", 5000, "card")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != domain.OutcomeUnavailable {
		t.Fatalf("outcome = %s, want UNAVAILABLE", res.Outcome)
	}
	if gw.calls != 3 {
		t.Fatalf("gateway calls = %d, want 3", gw.calls)
	}
}

func TestRefundHappyPath(t *testing.T) {
	ctx := context.Background()
	sim := gateway.NewSimulator(10_000_00)
	svc, repo := newService(sim)

	res, err := svc.Authorize(ctx, "o1", 5000, "card")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Refund(ctx, "o1"); err != nil {
		t.Fatal(err)
	}

	if amount, ok := sim.Refunded(res.Ref); !ok || amount != 5000 {
		t.Fatalf("refunded = %d/%v, want 5000/true", amount, ok)
	}
	rec, _ := repo.GetByOrder(ctx, "o1")
	if rec.Status != domain.StatusRefunded {
		t.Fatalf("status = %s, want REFUNDED", rec.Status)
	}
}

func TestRefundRequiresCapture(t *testing.T) {
	ctx := context.Background()
	sim := gateway.NewSimulator(1) // declines everything
	svc, _ := newService(sim)

	if _, err := svc.Authorize(ctx, "o1", 5000, "card"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Refund(ctx, "o1"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("refund of declined payment: err = %v", err)
	}
}

func TestRefundFailureKeepsCapture(t *testing.T) {
	ctx := context.Background()
	sim := gateway.NewSimulator(10_000_00)
	svc, repo := newService(sim)

	if _, err := svc.Authorize(ctx, "o1", 5000, "card"); err != nil {
		t.Fatal(err)
	}
	sim.FailRefunds(true)

	if err := svc.Refund(ctx, "o1"); !errors.Is(err, domain.ErrRefundFailed) {
		t.Fatalf("err = %v, want ErrRefundFailed", err)
	}
	rec, _ := repo.GetByOrder(ctx, "o1")
	if rec.Status != domain.StatusCaptured {
		t.Fatalf("status = %s, want CAPTURED preserved", rec.Status)
	}
}

func TestSimulatorReplaysIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	sim := gateway.NewSimulator(10_000_00)

	req := domain.AuthRequest{OrderID: "o1", AmountCents: 5000, Method: "card", IdempotencyKey: "auth:o1"}
	first, err := sim.Authorize(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := sim.Authorize(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if first.Ref != second.Ref {
		t.Fatalf("replay returned new ref: %s vs %s", first.Ref, second.Ref)
	}
}
