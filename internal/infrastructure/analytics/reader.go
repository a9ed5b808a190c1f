package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meterline/meterline/internal/domain/metering"
)

// AggregateReader answers aggregated usage questions for billing and
// entitlement resolution. It reads the durable event table directly; the
// daily rollups exist for reporting, not for billing-critical math.
type AggregateReader struct {
	eventRepo metering.UsageEventRepository
}

// NewAggregateReader creates a new AggregateReader.
func NewAggregateReader(eventRepo metering.UsageEventRepository) *AggregateReader {
	return &AggregateReader{eventRepo: eventRepo}
}

func (r *AggregateReader) GetAggregatedUsage(ctx context.Context, customerID, featureSlug string, start, end time.Time, method metering.AggregationMethod) (decimal.Decimal, error) {
	if !method.IsValid() {
		return decimal.Zero, fmt.Errorf("invalid aggregation method: %s", method)
	}

	events, err := r.eventRepo.ListForWindow(ctx, customerID, featureSlug, start, end)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list usage events: %w", err)
	}

	values := make([]decimal.Decimal, 0, len(events))
	for _, ev := range events {
		values = append(values, ev.Usage())
	}
	return method.Apply(values), nil
}
