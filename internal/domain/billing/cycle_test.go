package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
)

func monthlyPeriod(t *testing.T) vo.BillingPeriod {
	t.Helper()
	return vo.MustBillingPeriod(vo.PeriodMonth, 1, vo.AnchorCreation, 0)
}

func TestNextCycle_TilesExactly(t *testing.T) {
	period := monthlyPeriod(t)
	prevEnd := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

	cycle, err := NextCycle(prevEnd, period)
	require.NoError(t, err)

	assert.True(t, cycle.Start.Equal(prevEnd), "next cycle must start exactly at previous end")
	assert.True(t, cycle.End.Equal(time.Date(2026, 4, 15, 10, 30, 0, 0, time.UTC)))
	assert.True(t, cycle.ProrationFactor.Equal(decimal.NewFromInt(1)))
	assert.False(t, cycle.IsProrated())

	// The following cycle tiles onto this one.
	next, err := NextCycle(cycle.End, period)
	require.NoError(t, err)
	assert.True(t, next.Start.Equal(cycle.End))
}

func TestNextCycle_MonthEndClamping(t *testing.T) {
	period := monthlyPeriod(t)

	tests := []struct {
		name    string
		prevEnd time.Time
		wantEnd time.Time
	}{
		{
			name:    "jan 31 clamps to feb 28",
			prevEnd: time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
			wantEnd: time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "jan 31 clamps to feb 29 in leap years",
			prevEnd: time.Date(2028, 1, 31, 0, 0, 0, 0, time.UTC),
			wantEnd: time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "mar 31 clamps to apr 30",
			prevEnd: time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC),
			wantEnd: time.Date(2026, 4, 30, 12, 0, 0, 0, time.UTC),
		},
		{
			name:    "mid-month day is kept",
			prevEnd: time.Date(2026, 5, 14, 0, 0, 0, 0, time.UTC),
			wantEnd: time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cycle, err := NextCycle(tt.prevEnd, period)
			require.NoError(t, err)
			assert.True(t, cycle.End.Equal(tt.wantEnd), "got %s want %s", cycle.End, tt.wantEnd)
		})
	}
}

func TestNextCycle_DayPeriods(t *testing.T) {
	period := vo.MustBillingPeriod(vo.PeriodDay, 7, vo.AnchorCreation, 0)
	prevEnd := time.Date(2026, 2, 26, 0, 0, 0, 0, time.UTC)

	cycle, err := NextCycle(prevEnd, period)
	require.NoError(t, err)
	assert.True(t, cycle.End.Equal(time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)))
	assert.True(t, cycle.ProrationFactor.Equal(decimal.NewFromInt(1)))
}

func TestNextCycle_YearlyClampsLeapDay(t *testing.T) {
	period := vo.MustBillingPeriod(vo.PeriodYear, 1, vo.AnchorCreation, 0)
	prevEnd := time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC)

	cycle, err := NextCycle(prevEnd, period)
	require.NoError(t, err)
	assert.True(t, cycle.End.Equal(time.Date(2029, 2, 28, 0, 0, 0, 0, time.UTC)))
}

func TestNextCycle_DayOfMonthAnchorProrates(t *testing.T) {
	period := vo.MustBillingPeriod(vo.PeriodMonth, 1, vo.AnchorDayOfMonth, 1)
	// Starting mid-month, the first anchored boundary is the 1st of the next
	// month, so the cycle is short.
	prevEnd := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)

	cycle, err := NextCycle(prevEnd, period)
	require.NoError(t, err)
	assert.True(t, cycle.End.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, cycle.IsProrated())
	assert.True(t, cycle.ProrationFactor.GreaterThan(decimal.Zero))
	assert.True(t, cycle.ProrationFactor.LessThan(decimal.NewFromInt(1)))

	// Once on-anchor, cycles are full periods again.
	next, err := NextCycle(cycle.End, period)
	require.NoError(t, err)
	assert.True(t, next.End.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, next.IsProrated())
}

func TestNextCycle_AnchorDayClampsShortMonths(t *testing.T) {
	period := vo.MustBillingPeriod(vo.PeriodMonth, 1, vo.AnchorDayOfMonth, 31)
	prevEnd := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	cycle, err := NextCycle(prevEnd, period)
	require.NoError(t, err)
	// Anchor day 31 clamps to February's last day.
	assert.True(t, cycle.End.Equal(time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)))
}

func TestNextCycle_Validation(t *testing.T) {
	period := monthlyPeriod(t)

	_, err := NextCycle(time.Time{}, period)
	assert.Error(t, err)

	_, err = NextCycle(time.Now(), vo.BillingPeriod{Unit: "fortnight", IntervalCount: 1})
	assert.Error(t, err)

	_, err = NextCycle(time.Now(), vo.BillingPeriod{Unit: vo.PeriodMonth, IntervalCount: 0})
	assert.Error(t, err)
}

func TestNextCycle_Deterministic(t *testing.T) {
	period := vo.MustBillingPeriod(vo.PeriodMonth, 1, vo.AnchorDayOfMonth, 15)
	prevEnd := time.Date(2026, 7, 3, 9, 0, 0, 0, time.UTC)

	first, err := NextCycle(prevEnd, period)
	require.NoError(t, err)
	second, err := NextCycle(prevEnd, period)
	require.NoError(t, err)

	assert.True(t, first.Start.Equal(second.Start))
	assert.True(t, first.End.Equal(second.End))
	assert.True(t, first.ProrationFactor.Equal(second.ProrationFactor))
}
