package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/commercekit/orderflow/internal/orchestrator/domain"
)

type SagaLog struct {
	mu      sync.RWMutex
	entries map[string][]domain.LogEntry
}

func NewSagaLog() *SagaLog {
	return &SagaLog{entries: make(map[string][]domain.LogEntry)}
}

func (l *SagaLog) Append(_ context.Context, entry domain.LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[entry.SagaID] = append(l.entries[entry.SagaID], entry)
	return nil
}

func (l *SagaLog) List(_ context.Context, sagaID string) ([]domain.LogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.LogEntry, len(l.entries[sagaID]))
	copy(out, l.entries[sagaID])
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}
