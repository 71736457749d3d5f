package idempotency

import (
	"context"
	"testing"
)

func TestMemoryStoreSeen(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	key := EventKey("notifier", "event-1")
	seen, err := s.Seen(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Fatal("fresh key reported seen")
	}

	seen, err = s.Seen(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Fatal("repeated key not reported seen")
	}

	seen, _ = s.Seen(ctx, EventKey("other-consumer", "event-1"))
	if seen {
		t.Fatal("same event id under another consumer must be independent")
	}
}
