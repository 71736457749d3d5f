// Package notification turns order lifecycle events into customer
// messages. Delivery is best-effort: a failed send is logged and counted
// but never fails the consumer, so notification problems cannot stall or
// corrupt order processing.
package notification

import "context"

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

type Message struct {
	Channel   Channel
	Recipient string
	Subject   string
	Body      string
}

// Provider delivers one message over its channel.
type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// Directory resolves the contact address for an order.
type Directory interface {
	ContactFor(ctx context.Context, orderID string) (string, error)
}
