package eventbus

import (
	"context"
	"log/slog"
	"sync"
)

// MemoryBus delivers events synchronously in-process. Handler errors are
// logged and swallowed so one consumer cannot block another, matching the
// at-least-once contract of the durable bus.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *slog.Logger
}

func NewMemoryBus(log *slog.Logger) *MemoryBus {
	return &MemoryBus{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, env Envelope) error {
	b.mu.RLock()
	handlers := b.handlers[topic]
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, env); err != nil {
			b.log.Error("event handler failed", "topic", topic, "event_id", env.EventID, "err", err)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

var _ Bus = (*MemoryBus)(nil)
