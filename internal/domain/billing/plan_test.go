package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
	"github.com/meterline/meterline/internal/domain/metering"
)

func newTestPlan(t *testing.T) *PlanVersion {
	t.Helper()
	plan, err := NewPlanVersion(
		"plan_test1", "pro", 1, "USD",
		vo.MustBillingPeriod(vo.PeriodMonth, 1, vo.AnchorCreation, 0),
		vo.PayInArrear, vo.ChargeAutomatically,
		true, 3, 0,
		[]PlanFeature{
			{
				FeatureSlug:     "api_calls",
				UnitAmountCents: 2,
				IncludedUnits:   decimal.NewFromInt(1000),
				Aggregation:     metering.AggregationSum,
			},
			{
				FeatureSlug:     "seats",
				UnitAmountCents: 500,
				IncludedUnits:   decimal.Zero,
				Aggregation:     metering.AggregationMax,
			},
		},
	)
	require.NoError(t, err)
	return plan
}

func TestPlanVersion_PriceFor(t *testing.T) {
	plan := newTestPlan(t)
	one := decimal.NewFromInt(1)

	t.Run("charges only above included units", func(t *testing.T) {
		amount, err := plan.PriceFor("api_calls", decimal.NewFromInt(1500), one)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), amount, "500 billable units at 2 cents")
	})

	t.Run("usage within included units is free", func(t *testing.T) {
		amount, err := plan.PriceFor("api_calls", decimal.NewFromInt(900), one)
		require.NoError(t, err)
		assert.Equal(t, int64(0), amount)
	})

	t.Run("proration scales the amount", func(t *testing.T) {
		half := decimal.NewFromFloat(0.5)
		amount, err := plan.PriceFor("seats", decimal.NewFromInt(4), half)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), amount, "4 seats at 500 cents, halved")
	})

	t.Run("fractional amounts round to whole cents", func(t *testing.T) {
		factor := decimal.NewFromFloat(0.333)
		amount, err := plan.PriceFor("seats", decimal.NewFromInt(1), factor)
		require.NoError(t, err)
		assert.Equal(t, int64(167), amount, "166.5 rounds to 167")
	})

	t.Run("rejects negative quantities", func(t *testing.T) {
		_, err := plan.PriceFor("api_calls", decimal.NewFromInt(-1), one)
		assert.Error(t, err)
	})

	t.Run("rejects unknown features", func(t *testing.T) {
		_, err := plan.PriceFor("teleportation", decimal.NewFromInt(1), one)
		assert.Error(t, err)
	})
}

func TestPlanVersion_Feature(t *testing.T) {
	plan := newTestPlan(t)

	feature, ok := plan.Feature("api_calls")
	require.True(t, ok)
	assert.Equal(t, int64(2), feature.UnitAmountCents)

	_, ok = plan.Feature("missing")
	assert.False(t, ok)
}

func TestNewPlanVersion_Validation(t *testing.T) {
	period := vo.MustBillingPeriod(vo.PeriodMonth, 1, vo.AnchorCreation, 0)

	_, err := NewPlanVersion("plan_x", "pro", 1, "DOLLARS", period,
		vo.PayInArrear, vo.ChargeAutomatically, false, 0, 0, nil)
	assert.Error(t, err, "currency must be a 3-letter code")

	_, err = NewPlanVersion("plan_x", "pro", 0, "USD", period,
		vo.PayInArrear, vo.ChargeAutomatically, false, 0, 0, nil)
	assert.Error(t, err, "version numbers start at 1")

	_, err = NewPlanVersion("plan_x", "pro", 1, "USD", period,
		vo.PayInArrear, vo.ChargeAutomatically, false, 0, 0,
		[]PlanFeature{{FeatureSlug: "api_calls", Aggregation: "median"}})
	assert.Error(t, err, "aggregation must belong to the closed set")
}

func TestPlanVersion_Deactivate(t *testing.T) {
	plan := newTestPlan(t)
	require.True(t, plan.Active())
	plan.Deactivate()
	assert.False(t, plan.Active())
}
