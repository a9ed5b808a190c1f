package metering

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(values ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		out = append(out, decimal.NewFromInt(v))
	}
	return out
}

func TestAggregationMethod_Apply(t *testing.T) {
	values := dec(3, 7, 2)

	assert.True(t, AggregationSum.Apply(values).Equal(decimal.NewFromInt(12)))
	assert.True(t, AggregationMax.Apply(values).Equal(decimal.NewFromInt(7)))
	assert.True(t, AggregationLast.Apply(values).Equal(decimal.NewFromInt(2)))
	assert.True(t, AggregationCount.Apply(values).Equal(decimal.NewFromInt(3)))
}

func TestAggregationMethod_ApplyEmpty(t *testing.T) {
	for _, m := range []AggregationMethod{AggregationSum, AggregationMax, AggregationLast, AggregationCount} {
		assert.True(t, m.Apply(nil).IsZero(), "empty window aggregates to zero for %s", m)
	}
}

func TestAggregationMethod_IsValid(t *testing.T) {
	assert.True(t, AggregationSum.IsValid())
	assert.False(t, AggregationMethod("median").IsValid())
}

func TestEntitlement_Allows(t *testing.T) {
	ent := &Entitlement{
		Entitled:  true,
		Remaining: decimal.NewFromInt(10),
	}

	assert.True(t, ent.Allows(decimal.NewFromInt(10)))
	assert.False(t, ent.Allows(decimal.NewFromInt(11)))

	ent.Unlimited = true
	assert.True(t, ent.Allows(decimal.NewFromInt(1_000_000)))

	ent.Entitled = false
	assert.False(t, ent.Allows(decimal.Zero), "not-entitled denies regardless of quota")
}
