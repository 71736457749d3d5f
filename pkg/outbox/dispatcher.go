package outbox

import (
	"context"
	"log/slog"

	"github.com/commercekit/orderflow/pkg/eventbus"
	"github.com/commercekit/orderflow/pkg/tracing"
)

// Dispatcher republishes locked outbox rows onto the event bus, resuming
// the trace that produced each row.
type Dispatcher struct {
	log      *slog.Logger
	bus      eventbus.Publisher
	producer string
}

func NewDispatcher(log *slog.Logger, bus eventbus.Publisher, producer string) *Dispatcher {
	return &Dispatcher{log: log, bus: bus, producer: producer}
}

func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	env := eventbus.Envelope{
		EventID:    ev.EventID,
		EventType:  ev.Type,
		OccurredAt: ev.CreatedAt,
		Producer:   d.producer,
		Key:        ev.AggregateID,
		Payload:    ev.Payload,
	}

	pubCtx := tracing.ExtractTraceparent(ctx, ev.Traceparent)
	if err := d.bus.Publish(pubCtx, ev.Topic, env); err != nil {
		d.log.Error("outbox dispatch failed", "event_id", ev.EventID, "topic", ev.Topic, "err", err)
		return err
	}
	d.log.Info("outbox dispatched", "event_id", ev.EventID, "type", ev.Type, "topic", ev.Topic)
	return nil
}
