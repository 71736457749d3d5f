package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"

	orderdomain "github.com/commercekit/orderflow/internal/order/domain"
	"github.com/commercekit/orderflow/pkg/eventbus"
	"github.com/commercekit/orderflow/pkg/retry"
)

// Dispatcher is the event-bus handler for order.confirmed and
// order.rejected. Its Handle methods always return nil: redelivery of a
// notification is pointless once we have logged the failure, and the
// consumer's dedupe already absorbs duplicates on the happy path.
type Dispatcher struct {
	log       *slog.Logger
	directory Directory
	provider  Provider
	policy    retry.Policy
	sent      *prometheus.CounterVec
}

func NewDispatcher(log *slog.Logger, directory Directory, provider Provider, sent *prometheus.CounterVec) *Dispatcher {
	return &Dispatcher{
		log:       log,
		directory: directory,
		provider:  provider,
		policy:    retry.Default(),
		sent:      sent,
	}
}

func (d *Dispatcher) HandleConfirmed(ctx context.Context, env eventbus.Envelope) error {
	var ev orderdomain.OrderConfirmed
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		d.log.Error("malformed OrderConfirmed payload", "event_id", env.EventID, "err", err)
		return nil
	}
	d.deliver(ctx, ev.OrderID,
		"Your order is confirmed",
		fmt.Sprintf("Order %s is confirmed. Total charged: %d.%02d.", ev.OrderID, ev.TotalCents/100, ev.TotalCents%100),
	)
	return nil
}

func (d *Dispatcher) HandleRejected(ctx context.Context, env eventbus.Envelope) error {
	var ev orderdomain.OrderRejected
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		d.log.Error("malformed OrderRejected payload", "event_id", env.EventID, "err", err)
		return nil
	}
	d.deliver(ctx, ev.OrderID,
		"Your order could not be placed",
		fmt.Sprintf("Order %s was not placed (%s). You have not been charged.", ev.OrderID, reasonText(ev.Reason)),
	)
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, orderID, subject, body string) {
	contact, err := d.directory.ContactFor(ctx, orderID)
	if err != nil || contact == "" {
		d.log.Warn("no contact for order, dropping notification", "order_id", orderID, "err", err)
		return
	}

	msg := Message{
		Channel:   channelFor(contact),
		Recipient: contact,
		Subject:   subject,
		Body:      body,
	}
	err = d.policy.Do(ctx, func(ctx context.Context) error {
		return d.provider.Send(ctx, msg)
	})
	if err != nil {
		d.sent.WithLabelValues(string(msg.Channel), "failed").Inc()
		d.log.Error("notification delivery failed", "order_id", orderID, "channel", msg.Channel, "err", err)
		return
	}
	d.sent.WithLabelValues(string(msg.Channel), "sent").Inc()
	d.log.Info("notification delivered", "order_id", orderID, "channel", msg.Channel)
}

// channelFor picks SMS for phone-shaped contacts, email otherwise.
func channelFor(contact string) Channel {
	c := strings.TrimPrefix(strings.TrimSpace(contact), "+")
	if c == "" {
		return ChannelEmail
	}
	for _, r := range c {
		if !unicode.IsDigit(r) && r != ' ' && r != '-' {
			return ChannelEmail
		}
	}
	return ChannelSMS
}

func reasonText(r orderdomain.Reason) string {
	switch r {
	case orderdomain.ReasonInsufficientStock:
		return "items out of stock"
	case orderdomain.ReasonPaymentDeclined:
		return "payment declined"
	case orderdomain.ReasonPaymentUnavailable:
		return "payment could not be processed"
	case orderdomain.ReasonFraudSuspected:
		return "order could not be verified"
	default:
		return "order could not be completed"
	}
}
