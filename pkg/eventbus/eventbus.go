// Package eventbus is the topic-based fan-out connecting the orchestrator's
// emitted events to downstream consumers. Delivery is at-least-once;
// consumers dedupe by event id.
package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps every event on the bus with routing and dedup metadata.
// Key is the aggregate id (order id, product id) and doubles as the kafka
// partition key so that one aggregate's events stay ordered.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Producer   string          `json:"producer"`
	Key        string          `json:"key"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload and stamps a fresh event id.
func NewEnvelope(eventType, key, producer string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Producer:   producer,
		Key:        key,
		Payload:    data,
	}, nil
}

// Handler processes one delivered envelope. Returning an error leaves the
// delivery eligible for redelivery; handlers must therefore be idempotent.
type Handler func(ctx context.Context, env Envelope) error

type Publisher interface {
	Publish(ctx context.Context, topic string, env Envelope) error
}

type Subscriber interface {
	Subscribe(topic string, h Handler)
}

type Bus interface {
	Publisher
	Subscriber
}
