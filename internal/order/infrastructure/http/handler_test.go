package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/commercekit/orderflow/internal/fraud"
	orchapp "github.com/commercekit/orderflow/internal/orchestrator/application"
	sagamem "github.com/commercekit/orderflow/internal/orchestrator/infrastructure/memory"
	"github.com/commercekit/orderflow/internal/order/application"
	ordermem "github.com/commercekit/orderflow/internal/order/infrastructure/memory"
	paymentapp "github.com/commercekit/orderflow/internal/payment/application"
	"github.com/commercekit/orderflow/internal/payment/infrastructure/gateway"
	paymentmem "github.com/commercekit/orderflow/internal/payment/infrastructure/memory"
	stockapp "github.com/commercekit/orderflow/internal/stock/application"
	stockmem "github.com/commercekit/orderflow/internal/stock/infrastructure/memory"
	"github.com/commercekit/orderflow/pkg/eventbus"
	"github.com/commercekit/orderflow/pkg/metrics"
)

func newTestServer(t *testing.T) (*httptest.Server, *stockapp.Ledger) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := eventbus.NewMemoryBus(log)

	orders := ordermem.NewRepository(bus)
	ledger := stockapp.NewLedger(log, stockmem.NewRepository(), bus, nil)
	payments := paymentapp.NewService(log, gateway.NewSimulator(10_000_00), paymentmem.NewRepository())
	fraudEval := fraud.NewEvaluator(log, fraud.DefaultConfig(), orders)
	m := metrics.New(prometheus.NewRegistry())
	coordinator := orchapp.NewCoordinator(log, orders, ledger, payments, sagamem.NewSagaLog(), fraudEval, m)
	svc := application.NewService(log, coordinator, orders, orders)

	r := chi.NewRouter()
	NewHandler(log, svc).Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, ledger
}

func placeBody(productID string, qty, price int64) []byte {
	body, _ := json.Marshal(placeOrderRequest{
		CustomerID: "c1",
		Items: []itemRequest{
			{ProductID: productID, Quantity: qty, UnitPriceCents: price},
		},
		ShippingAddress: "1 Main St",
		Contact:         "a@example.com",
		PaymentMethod:   "card",
	})
	return body
}

func TestPlaceOrderConfirmed(t *testing.T) {
	srv, ledger := newTestServer(t)
	if err := ledger.Onboard(context.Background(), "p1", 5); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(srv.URL+"/orders", "application/json", bytes.NewReader(placeBody("p1", 2, 1000)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var got orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.State != "CONFIRMED" || got.OrderID == "" || got.TotalCents != 2000 {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestPlaceOrderRejectedStock(t *testing.T) {
	srv, ledger := newTestServer(t)
	if err := ledger.Onboard(context.Background(), "p1", 1); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(srv.URL+"/orders", "application/json", bytes.NewReader(placeBody("p1", 3, 1000)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	var got orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.State != "REJECTED_STOCK" || got.Reason != "INSUFFICIENT_STOCK" {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body []byte
	}{
		{"not json", []byte("{nope")},
		{"no items", placeBody("p1", 0, 1000)[:0]},
		{"zero quantity", placeBody("p1", 0, 1000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/orders", "application/json", bytes.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestTrackOrder(t *testing.T) {
	srv, ledger := newTestServer(t)
	if err := ledger.Onboard(context.Background(), "p1", 5); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(srv.URL+"/orders", "application/json", bytes.NewReader(placeBody("p1", 1, 1000)))
	if err != nil {
		t.Fatal(err)
	}
	var placed orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&placed); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/orders/" + placed.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.OrderID != placed.OrderID || got.State != "CONFIRMED" {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestTrackOrderNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/orders/00000000-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
