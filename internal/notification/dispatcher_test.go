package notification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	orderdomain "github.com/commercekit/orderflow/internal/order/domain"
	"github.com/commercekit/orderflow/pkg/eventbus"
	"github.com/commercekit/orderflow/pkg/retry"
)

type stubDirectory struct {
	contact string
	err     error
}

func (d stubDirectory) ContactFor(context.Context, string) (string, error) {
	return d.contact, d.err
}

type recordingProvider struct {
	sent []Message
	err  error
}

func (p *recordingProvider) Send(_ context.Context, msg Message) error {
	p.sent = append(p.sent, msg)
	return p.err
}

func newTestDispatcher(dir Directory, provider Provider) *Dispatcher {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_notifications_total"}, []string{"channel", "outcome"})
	d := NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)), dir, provider, counter)
	d.policy = retry.Policy{Attempts: 2, BaseDelay: time.Millisecond}
	return d
}

func confirmedEnvelope(t *testing.T, orderID string) eventbus.Envelope {
	t.Helper()
	env, err := eventbus.NewEnvelope(orderdomain.EventOrderConfirmed, orderID, "test", orderdomain.OrderConfirmed{
		OrderID: orderID, CustomerID: "c1", TotalCents: 5000, PaymentRef: "ref-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestHandleConfirmedDelivers(t *testing.T) {
	provider := &recordingProvider{}
	d := newTestDispatcher(stubDirectory{contact: "a@example.com"}, provider)

	if err := d.HandleConfirmed(context.Background(), confirmedEnvelope(t, "o1")); err != nil {
		t.Fatal(err)
	}
	if len(provider.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(provider.sent))
	}
	msg := provider.sent[0]
	if msg.Channel != ChannelEmail || msg.Recipient != "a@example.com" {
		t.Fatalf("got channel=%s recipient=%s", msg.Channel, msg.Recipient)
	}
}

func TestHandleRejectedDelivers(t *testing.T) {
	provider := &recordingProvider{}
	d := newTestDispatcher(stubDirectory{contact: "+1 555-0100"}, provider)

	env, err := eventbus.NewEnvelope(orderdomain.EventOrderRejected, "o1", "test", orderdomain.OrderRejected{
		OrderID: "o1", CustomerID: "c1", Reason: orderdomain.ReasonPaymentDeclined,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.HandleRejected(context.Background(), env); err != nil {
		t.Fatal(err)
	}
	if len(provider.sent) != 1 || provider.sent[0].Channel != ChannelSMS {
		t.Fatalf("sent = %+v, want one SMS", provider.sent)
	}
}

// Notification failures are terminal here: logged, counted, and never
// surfaced, so the consumer commits and order processing is unaffected.
func TestProviderFailureDoesNotPropagate(t *testing.T) {
	provider := &recordingProvider{err: errors.New("smtp down")}
	d := newTestDispatcher(stubDirectory{contact: "a@example.com"}, provider)

	if err := d.HandleConfirmed(context.Background(), confirmedEnvelope(t, "o1")); err != nil {
		t.Fatalf("handler must swallow provider errors, got %v", err)
	}
	if len(provider.sent) != 2 {
		t.Fatalf("attempts = %d, want 2 (retry budget)", len(provider.sent))
	}
}

func TestMissingContactDropsMessage(t *testing.T) {
	provider := &recordingProvider{}
	d := newTestDispatcher(stubDirectory{err: errors.New("not found")}, provider)

	if err := d.HandleConfirmed(context.Background(), confirmedEnvelope(t, "o1")); err != nil {
		t.Fatal(err)
	}
	if len(provider.sent) != 0 {
		t.Fatalf("sent = %d, want 0", len(provider.sent))
	}
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	provider := &recordingProvider{}
	d := newTestDispatcher(stubDirectory{contact: "a@example.com"}, provider)

	env := eventbus.Envelope{EventID: "e1", EventType: orderdomain.EventOrderConfirmed, Payload: []byte("{not json")}
	if err := d.HandleConfirmed(context.Background(), env); err != nil {
		t.Fatal(err)
	}
	if len(provider.sent) != 0 {
		t.Fatalf("sent = %d, want 0", len(provider.sent))
	}
}

func TestChannelFor(t *testing.T) {
	tests := []struct {
		contact string
		want    Channel
	}{
		{"a@example.com", ChannelEmail},
		{"+1 555-0100", ChannelSMS},
		{"5550100", ChannelSMS},
		{"555-0100", ChannelSMS},
		{"", ChannelEmail},
		{"user.name@corp.io", ChannelEmail},
	}
	for _, tt := range tests {
		if got := channelFor(tt.contact); got != tt.want {
			t.Errorf("channelFor(%q) = %s, want %s", tt.contact, got, tt.want)
		}
	}
}
