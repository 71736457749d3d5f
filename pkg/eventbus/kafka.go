package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/commercekit/orderflow/pkg/idempotency"
	"github.com/commercekit/orderflow/pkg/tracing"
)

// KafkaPublisher writes envelopes to kafka, one message per event, keyed by
// the envelope key so a single aggregate's events preserve order.
type KafkaPublisher struct {
	log    *slog.Logger
	writer *kafka.Writer
}

func NewKafkaPublisher(log *slog.Logger, brokers []string) *KafkaPublisher {
	return &KafkaPublisher{
		log: log,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, env Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	headers := []kafka.Header{{Key: "event_type", Value: []byte(env.EventType)}}
	headers = tracing.InjectKafkaHeaders(ctx, headers)

	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(env.Key),
		Value:   value,
		Headers: headers,
	})
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

var _ Publisher = (*KafkaPublisher)(nil)

// KafkaConsumer runs a consumer-group loop over one topic, deduping by
// event id before invoking the handler. Handler errors are logged and the
// message is committed anyway; redelivery safety comes from the dedup
// store and idempotent handlers, not from kafka retries.
type KafkaConsumer struct {
	log     *slog.Logger
	reader  *kafka.Reader
	handler Handler
	idem    idempotency.Store
	group   string
	tracer  trace.Tracer
}

func NewKafkaConsumer(log *slog.Logger, brokers []string, topic, group string, handler Handler, idem idempotency.Store) *KafkaConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return &KafkaConsumer{
		log:     log,
		reader:  r,
		handler: handler,
		idem:    idem,
		group:   group,
		tracer:  otel.Tracer("eventbus-consumer"),
	}
}

func (c *KafkaConsumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		var env Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			c.log.Error("envelope unmarshal failed", "topic", msg.Topic, "err", err)
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		// Seen is test-and-set: the id is recorded before the handler
		// runs, so a crash between here and a completed send drops that
		// one delivery rather than replaying it. Suitable only for
		// best-effort handlers; a crash-safe consumer would mark after.
		key := idempotency.EventKey(c.group, env.EventID)
		seen, err := c.idem.Seen(ctx, key)
		if err != nil {
			c.log.Error("idempotency check failed", "err", err)
			continue
		}
		if seen {
			c.log.Info("duplicate event skipped", "event_id", env.EventID)
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
		msgCtx, span := c.tracer.Start(msgCtx, "Consume "+env.EventType)
		if err := c.handler(msgCtx, env); err != nil {
			c.log.Error("event handler failed", "event_id", env.EventID, "type", env.EventType, "err", err)
		}
		span.End()
		_ = c.reader.CommitMessages(ctx, msg)
	}
}
