package usecases

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meterline/meterline/internal/domain/metering"
)

// IdempotencyStore is the fast-path duplicate filter in front of the
// database unique constraint. Reserve is best-effort: a false negative
// (key not found after eviction) is harmless because Insert still dedups
// authoritatively; a false positive cannot happen because keys are only
// reserved after validation.
type IdempotencyStore interface {
	// Reserve claims the key atomically. It returns false when the key was
	// already claimed within the retention window.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release frees a reserved key after a failed write so the caller can
	// retry delivery.
	Release(ctx context.Context, key string) error
}

// EntitlementCache holds resolved entitlements for the hot metering path.
type EntitlementCache interface {
	Get(ctx context.Context, customerID, featureSlug string) (*metering.Entitlement, error)
	Set(ctx context.Context, ent *metering.Entitlement) error
	InvalidateCustomer(ctx context.Context, customerID string) error
}

// UsageSink streams accepted usage events to the analytics store. Delivery
// is asynchronous and best-effort; the database row is the durable record.
type UsageSink interface {
	Publish(ctx context.Context, ev *metering.UsageEvent) error
}

// UsageAggregator answers aggregated usage questions over a time window.
type UsageAggregator interface {
	GetAggregatedUsage(ctx context.Context, customerID, featureSlug string, start, end time.Time, method metering.AggregationMethod) (decimal.Decimal, error)
}
