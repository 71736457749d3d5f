package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMemoryBusDelivers(t *testing.T) {
	bus := NewMemoryBus(discard())

	var got Envelope
	bus.Subscribe("orders", func(_ context.Context, env Envelope) error {
		got = env
		return nil
	})

	env, err := NewEnvelope("OrderConfirmed", "order-1", "test", map[string]string{"hello": "world"})
	if err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(context.Background(), "orders", env); err != nil {
		t.Fatal(err)
	}

	if got.EventID != env.EventID || got.EventType != "OrderConfirmed" || got.Key != "order-1" {
		t.Fatalf("unexpected envelope: %+v", got)
	}
	var payload map[string]string
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["hello"] != "world" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestMemoryBusSwallowsHandlerErrors(t *testing.T) {
	bus := NewMemoryBus(discard())
	delivered := 0
	bus.Subscribe("orders", func(context.Context, Envelope) error {
		return errors.New("handler down")
	})
	bus.Subscribe("orders", func(context.Context, Envelope) error {
		delivered++
		return nil
	})

	env, _ := NewEnvelope("OrderRejected", "order-2", "test", nil)
	if err := bus.Publish(context.Background(), "orders", env); err != nil {
		t.Fatalf("publish should not surface handler errors, got %v", err)
	}
	if delivered != 1 {
		t.Fatalf("second handler not reached, delivered = %d", delivered)
	}
}

func TestMemoryBusIgnoresOtherTopics(t *testing.T) {
	bus := NewMemoryBus(discard())
	called := false
	bus.Subscribe("stock", func(context.Context, Envelope) error {
		called = true
		return nil
	})

	env, _ := NewEnvelope("OrderConfirmed", "order-3", "test", nil)
	_ = bus.Publish(context.Background(), "orders", env)
	if called {
		t.Fatal("handler on a different topic was called")
	}
}
