package valueobjects

import "fmt"

// PeriodUnit is the base unit of a billing period.
type PeriodUnit string

const (
	PeriodDay   PeriodUnit = "day"
	PeriodMonth PeriodUnit = "month"
	PeriodYear  PeriodUnit = "year"
)

// IsValid reports whether the unit belongs to the closed set.
func (u PeriodUnit) IsValid() bool {
	return u == PeriodDay || u == PeriodMonth || u == PeriodYear
}

// AnchorPolicy controls where a cycle boundary snaps to.
type AnchorPolicy string

const (
	// AnchorCreation keeps cycle boundaries on the subscription's own
	// creation day.
	AnchorCreation AnchorPolicy = "creation"
	// AnchorDayOfMonth snaps month/year boundaries to a fixed calendar day,
	// producing one short (prorated) cycle when the subscription starts
	// off-anchor.
	AnchorDayOfMonth AnchorPolicy = "day_of_month"
)

// BillingPeriod describes how long one billing cycle lasts and where its
// boundaries snap to.
type BillingPeriod struct {
	Unit          PeriodUnit
	IntervalCount int
	Anchor        AnchorPolicy
	// AnchorDay is the calendar day (1-31) used when Anchor is
	// AnchorDayOfMonth. Days past the end of a month clamp to its last day.
	AnchorDay int
}

// NewBillingPeriod validates and builds a billing period.
func NewBillingPeriod(unit PeriodUnit, intervalCount int, anchor AnchorPolicy, anchorDay int) (BillingPeriod, error) {
	if !unit.IsValid() {
		return BillingPeriod{}, fmt.Errorf("invalid period unit: %s", unit)
	}
	if intervalCount < 1 {
		return BillingPeriod{}, fmt.Errorf("interval count must be at least 1, got %d", intervalCount)
	}
	switch anchor {
	case AnchorCreation:
	case AnchorDayOfMonth:
		if unit == PeriodDay {
			return BillingPeriod{}, fmt.Errorf("day-of-month anchor is not applicable to day periods")
		}
		if anchorDay < 1 || anchorDay > 31 {
			return BillingPeriod{}, fmt.Errorf("anchor day must be within 1-31, got %d", anchorDay)
		}
	default:
		return BillingPeriod{}, fmt.Errorf("invalid anchor policy: %s", anchor)
	}
	return BillingPeriod{
		Unit:          unit,
		IntervalCount: intervalCount,
		Anchor:        anchor,
		AnchorDay:     anchorDay,
	}, nil
}

// MustBillingPeriod builds a billing period and panics on error. Test helper
// and static plan seeds only.
func MustBillingPeriod(unit PeriodUnit, intervalCount int, anchor AnchorPolicy, anchorDay int) BillingPeriod {
	p, err := NewBillingPeriod(unit, intervalCount, anchor, anchorDay)
	if err != nil {
		panic(err)
	}
	return p
}
