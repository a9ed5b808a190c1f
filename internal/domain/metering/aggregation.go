package metering

import "github.com/shopspring/decimal"

// AggregationMethod collapses raw usage events into a single billable
// quantity for a period.
type AggregationMethod string

const (
	AggregationSum   AggregationMethod = "sum"
	AggregationMax   AggregationMethod = "max"
	AggregationLast  AggregationMethod = "last"
	AggregationCount AggregationMethod = "count"
)

// IsValid reports whether the method belongs to the closed set.
func (m AggregationMethod) IsValid() bool {
	switch m {
	case AggregationSum, AggregationMax, AggregationLast, AggregationCount:
		return true
	}
	return false
}

// Apply folds an ordered slice of usage values into one quantity. Events
// must be in timestamp order for AggregationLast to be meaningful.
func (m AggregationMethod) Apply(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	switch m {
	case AggregationSum:
		total := decimal.Zero
		for _, v := range values {
			total = total.Add(v)
		}
		return total
	case AggregationMax:
		max := values[0]
		for _, v := range values[1:] {
			if v.GreaterThan(max) {
				max = v
			}
		}
		return max
	case AggregationLast:
		return values[len(values)-1]
	case AggregationCount:
		return decimal.NewFromInt(int64(len(values)))
	}
	return decimal.Zero
}
