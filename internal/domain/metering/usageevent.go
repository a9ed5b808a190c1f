package metering

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// UsageEvent is an idempotent usage fact reported once per real-world
// occurrence. Two events with the same idempotence key are the same event:
// the ingestion path must have at-most-once effect on aggregates even when
// the caller retries delivery.
type UsageEvent struct {
	id             uint
	sid            string // evt_...
	customerID     string
	featureSlug    string
	usage          decimal.Decimal
	idempotenceKey string
	timestamp      time.Time
	metadata       map[string]string
	createdAt      time.Time
}

// NewUsageEvent validates and builds a usage event. The idempotence key is
// mandatory and caller-supplied; negative usage is rejected as a data
// corruption signal.
func NewUsageEvent(
	sid, customerID, featureSlug string,
	usage decimal.Decimal,
	idempotenceKey string,
	timestamp time.Time,
	metadata map[string]string,
) (*UsageEvent, error) {
	if sid == "" {
		return nil, fmt.Errorf("usage event SID is required")
	}
	if customerID == "" {
		return nil, fmt.Errorf("customer ID is required")
	}
	if featureSlug == "" {
		return nil, fmt.Errorf("feature slug is required")
	}
	if usage.IsNegative() {
		return nil, fmt.Errorf("usage cannot be negative, got %s", usage)
	}
	if idempotenceKey == "" {
		return nil, fmt.Errorf("idempotence key is required")
	}
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	if metadata == nil {
		metadata = make(map[string]string)
	}

	return &UsageEvent{
		sid:            sid,
		customerID:     customerID,
		featureSlug:    featureSlug,
		usage:          usage,
		idempotenceKey: idempotenceKey,
		timestamp:      timestamp,
		metadata:       metadata,
		createdAt:      time.Now().UTC(),
	}, nil
}

// ReconstructUsageEvent rebuilds a usage event from persistence.
func ReconstructUsageEvent(
	id uint,
	sid, customerID, featureSlug string,
	usage decimal.Decimal,
	idempotenceKey string,
	timestamp time.Time,
	metadata map[string]string,
	createdAt time.Time,
) (*UsageEvent, error) {
	if id == 0 {
		return nil, fmt.Errorf("usage event ID cannot be zero")
	}
	ev, err := NewUsageEvent(sid, customerID, featureSlug, usage, idempotenceKey, timestamp, metadata)
	if err != nil {
		return nil, err
	}
	ev.id = id
	ev.createdAt = createdAt
	return ev, nil
}

func (e *UsageEvent) ID() uint                    { return e.id }
func (e *UsageEvent) SID() string                 { return e.sid }
func (e *UsageEvent) CustomerID() string          { return e.customerID }
func (e *UsageEvent) FeatureSlug() string         { return e.featureSlug }
func (e *UsageEvent) Usage() decimal.Decimal      { return e.usage }
func (e *UsageEvent) IdempotenceKey() string      { return e.idempotenceKey }
func (e *UsageEvent) Timestamp() time.Time        { return e.timestamp }
func (e *UsageEvent) Metadata() map[string]string { return e.metadata }
func (e *UsageEvent) CreatedAt() time.Time        { return e.createdAt }

// SetID sets the event ID (persistence layer only).
func (e *UsageEvent) SetID(id uint) error {
	if e.id != 0 {
		return fmt.Errorf("usage event ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("usage event ID cannot be zero")
	}
	e.id = id
	return nil
}
