package billing

import (
	"fmt"
	"time"

	"github.com/meterline/meterline/internal/domain/metering"
)

// SubscriptionItem attaches one metered feature of the plan version to a
// subscription. The aggregation method collapses raw usage events into the
// billable quantity for a period. Items become immutable once the billing
// period they were metered in has closed.
type SubscriptionItem struct {
	id             uint
	subscriptionID uint
	featureSlug    string
	aggregation    metering.AggregationMethod
	periodClosedAt *time.Time
	createdAt      time.Time
}

// NewSubscriptionItem creates an item for a subscription.
func NewSubscriptionItem(subscriptionID uint, featureSlug string, aggregation metering.AggregationMethod) (*SubscriptionItem, error) {
	if subscriptionID == 0 {
		return nil, fmt.Errorf("subscription ID is required")
	}
	if featureSlug == "" {
		return nil, fmt.Errorf("feature slug is required")
	}
	if !aggregation.IsValid() {
		return nil, fmt.Errorf("invalid aggregation method: %s", aggregation)
	}
	return &SubscriptionItem{
		subscriptionID: subscriptionID,
		featureSlug:    featureSlug,
		aggregation:    aggregation,
		createdAt:      time.Now().UTC(),
	}, nil
}

// ReconstructSubscriptionItem rebuilds an item from persistence.
func ReconstructSubscriptionItem(
	id, subscriptionID uint,
	featureSlug string,
	aggregation metering.AggregationMethod,
	periodClosedAt *time.Time,
	createdAt time.Time,
) (*SubscriptionItem, error) {
	if id == 0 {
		return nil, fmt.Errorf("subscription item ID cannot be zero")
	}
	item, err := NewSubscriptionItem(subscriptionID, featureSlug, aggregation)
	if err != nil {
		return nil, err
	}
	item.id = id
	item.periodClosedAt = periodClosedAt
	item.createdAt = createdAt
	return item, nil
}

func (i *SubscriptionItem) ID() uint                                 { return i.id }
func (i *SubscriptionItem) SubscriptionID() uint                     { return i.subscriptionID }
func (i *SubscriptionItem) FeatureSlug() string                      { return i.featureSlug }
func (i *SubscriptionItem) Aggregation() metering.AggregationMethod  { return i.aggregation }
func (i *SubscriptionItem) PeriodClosedAt() *time.Time               { return i.periodClosedAt }
func (i *SubscriptionItem) CreatedAt() time.Time                     { return i.createdAt }

// SetID sets the item ID (persistence layer only).
func (i *SubscriptionItem) SetID(id uint) error {
	if i.id != 0 {
		return fmt.Errorf("subscription item ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("subscription item ID cannot be zero")
	}
	i.id = id
	return nil
}

// ClosePeriod freezes the item after its billing period is invoiced.
func (i *SubscriptionItem) ClosePeriod(at time.Time) error {
	if i.periodClosedAt != nil {
		return fmt.Errorf("billing period already closed at %s", i.periodClosedAt)
	}
	i.periodClosedAt = &at
	return nil
}

// IsMutable reports whether the item can still change.
func (i *SubscriptionItem) IsMutable() bool {
	return i.periodClosedAt == nil
}
