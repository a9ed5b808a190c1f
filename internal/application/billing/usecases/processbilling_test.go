package usecases

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meterline/meterline/internal/domain/billing"
	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
	"github.com/meterline/meterline/internal/domain/metering"
	apperrors "github.com/meterline/meterline/internal/shared/errors"
)

// billingFixture wires a ProcessBillingUseCase over in-memory collaborators.
type billingFixture struct {
	subs        *fakeSubscriptionRepo
	items       *fakeItemRepo
	plans       *fakePlanRepo
	invoices    *fakeInvoiceRepo
	provider    *fakeProvider
	usage       *fakeUsage
	invalidator *fakeInvalidator
	uc          *ProcessBillingUseCase
}

func newBillingFixture() *billingFixture {
	f := &billingFixture{
		subs:        newFakeSubscriptionRepo(),
		items:       newFakeItemRepo(),
		plans:       newFakePlanRepo(),
		invoices:    newFakeInvoiceRepo(),
		provider:    newFakeProvider(),
		usage:       newFakeUsage(),
		invalidator: &fakeInvalidator{},
	}
	f.uc = NewProcessBillingUseCase(
		f.subs, f.items, f.plans, f.invoices,
		f.provider, f.usage, f.invalidator, testLogger(),
	)
	return f
}

// addMeteredPlan seeds a monthly arrear plan with one metered feature:
// api_calls at 2 cents per unit with 100 units included.
func (f *billingFixture) addMeteredPlan(t *testing.T, id uint, requiresPaymentMethod bool) *billing.PlanVersion {
	t.Helper()
	plan, err := billing.ReconstructPlanVersion(billing.PlanVersionReconstructParams{
		ID:                    id,
		SID:                   fmt.Sprintf("plan_test%d", id),
		PlanName:              "metered",
		VersionNumber:         1,
		Currency:              "USD",
		Period:                vo.MustBillingPeriod(vo.PeriodMonth, 1, vo.AnchorCreation, 0),
		WhenToBill:            vo.PayInArrear,
		CollectionMethod:      vo.ChargeAutomatically,
		RequiresPaymentMethod: requiresPaymentMethod,
		GracePeriodDays:       3,
		Features: []billing.PlanFeature{{
			FeatureSlug:     "api_calls",
			UnitAmountCents: 2,
			IncludedUnits:   decimal.NewFromInt(100),
			Aggregation:     metering.AggregationSum,
		}},
		Active: true,
	})
	require.NoError(t, err)
	f.plans.add(plan)
	return plan
}

// addDueSubscription seeds an arrear subscription whose window Mar 1 - Apr 1
// 2026 is due at its close.
func (f *billingFixture) addDueSubscription(t *testing.T, planID uint, collection vo.CollectionMethod) *billing.Subscription {
	t.Helper()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sub, err := billing.NewSubscription(
		fmt.Sprintf("sub_test%d", len(f.subs.subs)+1), "cus_1", planID,
		start, start.AddDate(0, 1, 0),
		vo.PayInArrear, collection,
		3, nil,
	)
	require.NoError(t, err)
	f.subs.add(t, sub)
	f.items.add(t, sub.ID(), "api_calls", metering.AggregationSum)
	return sub
}

func TestProcessBilling_AdvanceBillingKeepsMonthlyCadence(t *testing.T) {
	f := newBillingFixture()
	f.addMeteredPlan(t, 1, false)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sub, err := billing.NewSubscription(
		"sub_advance1", "cus_1", 1,
		start, start.AddDate(0, 1, 0),
		vo.PayInAdvance, vo.ChargeAutomatically,
		3, nil,
	)
	require.NoError(t, err)
	f.subs.add(t, sub)
	f.items.add(t, sub.ID(), "api_calls", metering.AggregationSum)
	sub.SetDefaultPaymentMethod("pm_1")
	f.usage.quantities["api_calls"] = decimal.NewFromInt(300)

	// Due at the window open, not its close.
	require.True(t, sub.NextBillingAt().Equal(start))
	result, err := f.uc.Execute(context.Background(), ProcessBillingCommand{
		SubscriptionID: sub.ID(),
		CurrentDate:    start,
	})
	require.NoError(t, err)
	assert.True(t, result.Billed)

	// The next bill lands exactly one period later, at the new cycle open,
	// and the grace window measured there still lies ahead of the due
	// instant.
	nextDue := start.AddDate(0, 1, 0)
	assert.True(t, sub.NextBillingAt().Equal(nextDue))
	assert.True(t, sub.BillingCycleStartAt().Equal(nextDue))
	assert.True(t, sub.GracePeriodEndsAt().Equal(nextDue.AddDate(0, 0, 3)))
	assert.False(t, sub.GracePeriodEndsAt().Before(nextDue))
}

func TestProcessBilling_AutoChargeRenewsCycle(t *testing.T) {
	f := newBillingFixture()
	f.addMeteredPlan(t, 1, true)
	sub := f.addDueSubscription(t, 1, vo.ChargeAutomatically)
	sub.SetDefaultPaymentMethod("pm_1")
	f.usage.quantities["api_calls"] = decimal.NewFromInt(600)

	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	result, err := f.uc.Execute(context.Background(), ProcessBillingCommand{
		SubscriptionID: sub.ID(),
		CurrentDate:    now,
	})
	require.NoError(t, err)
	assert.True(t, result.Billed)
	assert.False(t, result.Skipped)
	assert.NotEmpty(t, result.InvoiceSID)

	// The subscription advanced into the next cycle window.
	assert.Equal(t, vo.StatusActive, sub.Status())
	assert.True(t, sub.BillingCycleStartAt().Equal(now))
	assert.True(t, sub.BillingCycleEndAt().Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, sub.NextBillingAt().Equal(sub.BillingCycleEndAt()))
	require.NotNil(t, sub.LastBilledAt())
	assert.True(t, sub.LastBilledAt().Equal(now))
	assert.True(t, sub.IsPaidForCycle())

	// The invoice covers the closed window: 600 used, 100 included, 2 cents
	// per unit.
	inv, err := f.invoices.GetBySID(context.Background(), result.InvoiceSID)
	require.NoError(t, err)
	assert.Equal(t, vo.InvoiceOpen, inv.Status())
	assert.True(t, inv.PeriodStart().Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, inv.PeriodEnd().Equal(now))
	require.Len(t, inv.Lines(), 1)
	assert.Equal(t, int64(1000), inv.Lines()[0].Amount)
	assert.Equal(t, int64(1000), inv.TotalAmount())
	require.NotNil(t, inv.ProviderRef())

	// Provider side effects ran exactly once each.
	assert.Equal(t, 1, f.provider.createCalls)
	assert.Equal(t, 1, f.provider.itemCalls)
	assert.Equal(t, 1, f.provider.finalizeCalls)

	assert.Equal(t, []string{"cus_1"}, f.invalidator.customers)
}

func TestProcessBilling_SendInvoiceParksPastDue(t *testing.T) {
	f := newBillingFixture()
	f.addMeteredPlan(t, 1, false)
	sub := f.addDueSubscription(t, 1, vo.SendInvoice)
	f.usage.quantities["api_calls"] = decimal.NewFromInt(150)

	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	result, err := f.uc.Execute(context.Background(), ProcessBillingCommand{
		SubscriptionID: sub.ID(),
		CurrentDate:    now,
	})
	require.NoError(t, err)
	assert.True(t, result.Billed)

	// The cycle does not advance until the invoice is paid; the subscription
	// waits in past_due with the grace deadline anchored to the cycle close.
	assert.Equal(t, vo.StatusPastDue, sub.Status())
	reason, ok := sub.Reason()
	require.True(t, ok)
	assert.Equal(t, vo.ReasonPaymentPending, reason)
	require.NotNil(t, sub.PastDueAt())
	assert.True(t, sub.PastDueAt().Equal(time.Date(2026, 4, 4, 0, 0, 0, 0, time.UTC)))
	assert.True(t, sub.BillingCycleStartAt().Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, sub.BillingCycleEndAt().Equal(now))
	assert.Nil(t, sub.LastBilledAt())

	inv, err := f.invoices.GetOpenBySubscription(context.Background(), sub.ID())
	require.NoError(t, err)
	assert.Equal(t, result.InvoiceSID, inv.SID())
}

func TestProcessBilling_SkipReasons(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	t.Run("in trial", func(t *testing.T) {
		f := newBillingFixture()
		f.addMeteredPlan(t, 1, false)
		start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		trialEnd := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
		sub, err := billing.NewSubscription(
			"sub_trial", "cus_1", 1,
			start, start.AddDate(0, 1, 0),
			vo.PayInArrear, vo.SendInvoice, 3, &trialEnd,
		)
		require.NoError(t, err)
		f.subs.add(t, sub)

		result, err := f.uc.Execute(context.Background(), ProcessBillingCommand{SubscriptionID: sub.ID(), CurrentDate: now})
		require.NoError(t, err)
		assert.True(t, result.Skipped)
		assert.Equal(t, "in_trial", result.SkipReason)
	})

	t.Run("canceled", func(t *testing.T) {
		f := newBillingFixture()
		f.addMeteredPlan(t, 1, false)
		sub := f.addDueSubscription(t, 1, vo.SendInvoice)
		require.NoError(t, sub.Cancel(""))

		result, err := f.uc.Execute(context.Background(), ProcessBillingCommand{SubscriptionID: sub.ID(), CurrentDate: now})
		require.NoError(t, err)
		assert.True(t, result.Skipped)
		assert.Equal(t, "canceled", result.SkipReason)
	})

	t.Run("not due yet", func(t *testing.T) {
		f := newBillingFixture()
		f.addMeteredPlan(t, 1, false)
		sub := f.addDueSubscription(t, 1, vo.SendInvoice)

		early := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
		result, err := f.uc.Execute(context.Background(), ProcessBillingCommand{SubscriptionID: sub.ID(), CurrentDate: early})
		require.NoError(t, err)
		assert.True(t, result.Skipped)
		assert.Equal(t, "not_due", result.SkipReason)
	})

	t.Run("already billed for cycle", func(t *testing.T) {
		f := newBillingFixture()
		f.addMeteredPlan(t, 1, false)
		sub := f.addDueSubscription(t, 1, vo.ChargeAutomatically)
		cycle := billing.Cycle{
			Start:           sub.BillingCycleEndAt(),
			End:             sub.BillingCycleEndAt().AddDate(0, 1, 0),
			ProrationFactor: decimal.NewFromInt(1),
		}
		require.NoError(t, sub.MarkRenewed(cycle, now))

		result, err := f.uc.Execute(context.Background(), ProcessBillingCommand{
			SubscriptionID: sub.ID(),
			CurrentDate:    cycle.End,
		})
		require.NoError(t, err)
		assert.True(t, result.Skipped)
		assert.Equal(t, "already_billed", result.SkipReason)
		assert.Equal(t, 0, f.provider.createCalls)
	})
}

func TestProcessBilling_ParksWhenNoPaymentMethod(t *testing.T) {
	f := newBillingFixture()
	f.addMeteredPlan(t, 1, true)
	sub := f.addDueSubscription(t, 1, vo.ChargeAutomatically)

	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	result, err := f.uc.Execute(context.Background(), ProcessBillingCommand{
		SubscriptionID: sub.ID(),
		CurrentDate:    now,
	})
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, "pending_payment_method", result.SkipReason)

	assert.Equal(t, vo.StatusPastDue, sub.Status())
	reason, ok := sub.Reason()
	require.True(t, ok)
	assert.Equal(t, vo.ReasonPendingPaymentMethod, reason)
	require.NotNil(t, sub.PastDueAt())
	assert.True(t, sub.PastDueAt().Equal(time.Date(2026, 4, 4, 0, 0, 0, 0, time.UTC)))

	// No invoice was generated for an uncollectable charge.
	assert.Equal(t, 0, f.provider.createCalls)
	assert.Empty(t, f.invoices.invoices)
}

func TestProcessBilling_SkipsWhenOpenInvoiceExists(t *testing.T) {
	f := newBillingFixture()
	f.addMeteredPlan(t, 1, false)
	sub := f.addDueSubscription(t, 1, vo.SendInvoice)

	existing, err := billing.NewInvoice(
		"inv_prior", sub.ID(), sub.CustomerID(), "USD",
		sub.BillingCycleStartAt(), sub.BillingCycleEndAt(),
	)
	require.NoError(t, err)
	require.NoError(t, existing.Finalize())
	require.NoError(t, f.invoices.CreateForPeriod(context.Background(), existing))

	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	result, err := f.uc.Execute(context.Background(), ProcessBillingCommand{
		SubscriptionID: sub.ID(),
		CurrentDate:    now,
	})
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, "invoice_exists", result.SkipReason)
	assert.Equal(t, 0, f.provider.createCalls)
	assert.Equal(t, vo.StatusActive, sub.Status(), "re-entry must not touch subscription state")
}

func TestProcessBilling_RejectsNegativeUsage(t *testing.T) {
	f := newBillingFixture()
	f.addMeteredPlan(t, 1, false)
	sub := f.addDueSubscription(t, 1, vo.ChargeAutomatically)
	f.usage.quantities["api_calls"] = decimal.NewFromInt(-5)

	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	_, err := f.uc.Execute(context.Background(), ProcessBillingCommand{
		SubscriptionID: sub.ID(),
		CurrentDate:    now,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
	assert.False(t, apperrors.IsRetryable(err), "corrupted aggregates are not retried")

	// Nothing reached the provider and nothing was persisted.
	assert.Equal(t, 0, f.provider.createCalls)
	assert.Empty(t, f.invoices.invoices)
	assert.Equal(t, vo.StatusActive, sub.Status())
	assert.Nil(t, sub.LastBilledAt())
}

func TestProcessBilling_ProviderFailureLeavesStateUntouched(t *testing.T) {
	f := newBillingFixture()
	f.addMeteredPlan(t, 1, false)
	sub := f.addDueSubscription(t, 1, vo.ChargeAutomatically)
	f.usage.quantities["api_calls"] = decimal.NewFromInt(600)
	f.provider.finalizeErr = errors.New("provider unavailable")

	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	_, err := f.uc.Execute(context.Background(), ProcessBillingCommand{
		SubscriptionID: sub.ID(),
		CurrentDate:    now,
	})
	require.Error(t, err)

	// The next scheduler tick retries from the prior state.
	assert.Equal(t, vo.StatusActive, sub.Status())
	assert.True(t, sub.BillingCycleEndAt().Equal(now))
	assert.Nil(t, sub.LastBilledAt())
	assert.Empty(t, f.invoices.invoices)
	assert.Equal(t, 0, f.subs.updates)
}
