package domain

import "time"

const (
	TopicLevelChanged = "stock.level.changed"

	EventLevelChanged = "StockLevelChanged"
)

// LevelChanged carries the absolute counters after a ledger mutation, so
// duplicate deliveries are naturally idempotent for consumers.
type LevelChanged struct {
	ProductID  string    `json:"product_id"`
	Available  int64     `json:"available"`
	Reserved   int64     `json:"reserved"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewLevelChanged(r *Record) LevelChanged {
	return LevelChanged{
		ProductID:  r.ProductID,
		Available:  r.Available,
		Reserved:   r.Reserved,
		OccurredAt: time.Now().UTC(),
	}
}
