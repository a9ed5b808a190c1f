package metering

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entitlement is the derived, read-mostly answer to "can customer X use
// feature Y now, and how much remains". It is computed from the subscription,
// its items and aggregated usage; never persisted, only cached short-term.
type Entitlement struct {
	CustomerID    string
	FeatureSlug   string
	Entitled      bool
	IncludedUnits decimal.Decimal
	Used          decimal.Decimal
	// Unlimited is set when the plan places no quota on the feature;
	// Remaining is meaningless then.
	Unlimited   bool
	Remaining   decimal.Decimal
	PeriodStart time.Time
	PeriodEnd   time.Time
	ResolvedAt  time.Time
}

// Allows reports whether the given additional usage fits within the
// entitlement.
func (e *Entitlement) Allows(usage decimal.Decimal) bool {
	if !e.Entitled {
		return false
	}
	if e.Unlimited {
		return true
	}
	return usage.LessThanOrEqual(e.Remaining)
}
