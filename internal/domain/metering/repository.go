package metering

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// UsageEventRepository persists raw usage events. Insert is the
// authoritative dedup point: a unique constraint on the idempotence key
// makes duplicate deliveries surface as ErrDuplicateEvent so the caller can
// acknowledge without double-counting.
type UsageEventRepository interface {
	Insert(ctx context.Context, ev *UsageEvent) error
	GetByIdempotenceKey(ctx context.Context, key string) (*UsageEvent, error)
	// ListForWindow returns a customer's events for one feature within
	// [start, end), ordered by timestamp ascending.
	ListForWindow(ctx context.Context, customerID, featureSlug string, start, end time.Time) ([]*UsageEvent, error)
	// DeleteOlderThan removes raw events past the retention horizon and
	// returns the number deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// AggregateDaily groups one day's events by customer and feature.
	// The day is a business-timezone midnight boundary.
	AggregateDaily(ctx context.Context, day time.Time) ([]DailyStat, error)
}

// DailyStat is one rolled-up day of usage for a customer and feature.
type DailyStat struct {
	CustomerID  string
	FeatureSlug string
	Day         time.Time
	Total       decimal.Decimal
	EventCount  int64
}

// UsageStatsRepository persists daily usage rollups.
type UsageStatsRepository interface {
	UpsertDaily(ctx context.Context, stats []DailyStat) error
	ListDaily(ctx context.Context, customerID string, start, end time.Time) ([]DailyStat, error)
}
