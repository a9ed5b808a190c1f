package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
)

// Cycle is one billing window [Start, End). Cycles tile the timeline: the
// next cycle always starts exactly at the previous cycle's end instant.
type Cycle struct {
	Start           time.Time
	End             time.Time
	ProrationFactor decimal.Decimal
}

// IsProrated reports whether the cycle is shorter than a full period.
func (c Cycle) IsProrated() bool {
	return c.ProrationFactor.LessThan(decimal.NewFromInt(1))
}

// NextCycle computes the billing window following prevEnd for the given
// period configuration. It is deterministic and side-effect free.
//
// The new cycle starts exactly at prevEnd. With a creation anchor the cycle
// is always a full period and the proration factor is exactly 1. With a
// day-of-month anchor the cycle ends at the earliest anchored boundary after
// prevEnd, which can be shorter than a full period; the proration factor is
// then the fraction actual/full in (0, 1].
func NextCycle(prevEnd time.Time, period vo.BillingPeriod) (Cycle, error) {
	if prevEnd.IsZero() {
		return Cycle{}, fmt.Errorf("previous cycle end is required")
	}
	if !period.Unit.IsValid() {
		return Cycle{}, fmt.Errorf("invalid period unit: %s", period.Unit)
	}
	if period.IntervalCount < 1 {
		return Cycle{}, fmt.Errorf("interval count must be at least 1, got %d", period.IntervalCount)
	}

	start := prevEnd
	fullEnd := advanceFullPeriod(start, period)

	end := fullEnd
	if period.Anchor == vo.AnchorDayOfMonth && period.Unit != vo.PeriodDay {
		anchored := earliestAnchoredBoundary(start, fullEnd, period.AnchorDay)
		if !anchored.IsZero() {
			end = anchored
		}
	}

	if !end.After(start) {
		return Cycle{}, fmt.Errorf("computed cycle end %s is not after start %s", end, start)
	}

	factor := decimal.NewFromInt(1)
	if end.Before(fullEnd) {
		factor = decimal.NewFromInt(int64(end.Sub(start))).
			Div(decimal.NewFromInt(int64(fullEnd.Sub(start))))
	}

	return Cycle{
		Start:           start,
		End:             end,
		ProrationFactor: factor,
	}, nil
}

// advanceFullPeriod returns start plus one full billing period.
func advanceFullPeriod(start time.Time, period vo.BillingPeriod) time.Time {
	switch period.Unit {
	case vo.PeriodDay:
		return start.AddDate(0, 0, period.IntervalCount)
	case vo.PeriodMonth:
		return addMonthsClamped(start, period.IntervalCount)
	default: // year
		return addMonthsClamped(start, 12*period.IntervalCount)
	}
}

// addMonthsClamped adds n months keeping the day of month, clamping to the
// target month's last day (Jan 31 + 1 month = Feb 28/29). time.AddDate would
// overflow into the following month instead.
func addMonthsClamped(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	firstOfTarget := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysInMonth(firstOfTarget); day > last {
		day = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// earliestAnchoredBoundary returns the first instant strictly after start and
// not after limit that falls on anchorDay (clamped per month) at start's
// clock time. Zero time when no boundary exists in the window.
func earliestAnchoredBoundary(start, limit time.Time, anchorDay int) time.Time {
	year, month, _ := start.Date()
	for m := 0; ; m++ {
		firstOfMonth := time.Date(year, month+time.Month(m), 1, 0, 0, 0, 0, start.Location())
		day := anchorDay
		if last := daysInMonth(firstOfMonth); day > last {
			day = last
		}
		candidate := time.Date(firstOfMonth.Year(), firstOfMonth.Month(), day,
			start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), start.Location())
		if candidate.After(limit) {
			return time.Time{}
		}
		if candidate.After(start) {
			return candidate
		}
	}
}

func daysInMonth(t time.Time) int {
	firstOfNext := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
	return firstOfNext.AddDate(0, 0, -1).Day()
}
