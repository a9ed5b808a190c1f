package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
)

// --- helpers ---

func newActiveSubscription(t *testing.T) *Subscription {
	t.Helper()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	sub, err := NewSubscription(
		"sub_test123", "cus_1", 1,
		start, end,
		vo.PayInAdvance, vo.ChargeAutomatically,
		3, nil,
	)
	require.NoError(t, err)
	return sub
}

func newTrialSubscription(t *testing.T, trialEndsAt time.Time) *Subscription {
	t.Helper()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	sub, err := NewSubscription(
		"sub_trial1", "cus_1", 1,
		start, end,
		vo.PayInAdvance, vo.ChargeAutomatically,
		3, &trialEndsAt,
	)
	require.NoError(t, err)
	return sub
}

func TestNewSubscription(t *testing.T) {
	t.Run("starts active without trial", func(t *testing.T) {
		sub := newActiveSubscription(t)
		assert.Equal(t, vo.StatusActive, sub.Status())
		assert.Nil(t, sub.PastDueAt())
		assert.Equal(t, 1, sub.Version())
	})

	t.Run("starts in trial with trial end", func(t *testing.T) {
		trialEnd := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
		sub := newTrialSubscription(t, trialEnd)
		assert.Equal(t, vo.StatusTrial, sub.Status())
	})

	t.Run("advance bills at cycle start, arrear at cycle end", func(t *testing.T) {
		start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0)

		advance, err := NewSubscription("sub_a", "cus_1", 1, start, end,
			vo.PayInAdvance, vo.ChargeAutomatically, 3, nil)
		require.NoError(t, err)
		assert.True(t, advance.NextBillingAt().Equal(start))

		arrear, err := NewSubscription("sub_b", "cus_1", 1, start, end,
			vo.PayInArrear, vo.ChargeAutomatically, 3, nil)
		require.NoError(t, err)
		assert.True(t, arrear.NextBillingAt().Equal(end))
	})

	t.Run("rejects inverted cycle window", func(t *testing.T) {
		start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		_, err := NewSubscription("sub_x", "cus_1", 1, start, start,
			vo.PayInAdvance, vo.ChargeAutomatically, 3, nil)
		assert.Error(t, err)
	})
}

func TestSubscription_MarkPastDue(t *testing.T) {
	sub := newActiveSubscription(t)
	deadline := time.Date(2026, 4, 4, 0, 0, 0, 0, time.UTC)

	require.NoError(t, sub.MarkPastDue(vo.ReasonPaymentFailed, deadline))
	assert.Equal(t, vo.StatusPastDue, sub.Status())
	require.NotNil(t, sub.PastDueAt())
	assert.True(t, sub.PastDueAt().Equal(deadline))

	reason, ok := sub.Reason()
	require.True(t, ok)
	assert.Equal(t, vo.ReasonPaymentFailed, reason)
}

func TestSubscription_MarkPastDue_RejectsUnrecognizedReason(t *testing.T) {
	sub := newActiveSubscription(t)
	err := sub.MarkPastDue("dog_ate_invoice", time.Now())
	assert.Error(t, err)
	assert.Equal(t, vo.StatusActive, sub.Status())
}

func TestSubscription_ReenteringPastDueKeepsDeadline(t *testing.T) {
	sub := newActiveSubscription(t)
	first := time.Date(2026, 4, 4, 0, 0, 0, 0, time.UTC)
	later := first.AddDate(0, 0, 10)

	require.NoError(t, sub.MarkPastDue(vo.ReasonPaymentFailed, first))
	require.NoError(t, sub.MarkPastDue(vo.ReasonPaymentPending, later))

	// The deadline is not pushed out; the reason is refreshed.
	assert.True(t, sub.PastDueAt().Equal(first))
	reason, ok := sub.Reason()
	require.True(t, ok)
	assert.Equal(t, vo.ReasonPaymentPending, reason)
}

func TestSubscription_ResolvePastDue(t *testing.T) {
	sub := newActiveSubscription(t)
	require.NoError(t, sub.MarkPastDue(vo.ReasonPendingPaymentMethod, time.Now().UTC()))

	require.NoError(t, sub.ResolvePastDue())
	assert.Equal(t, vo.StatusActive, sub.Status())
	assert.Nil(t, sub.PastDueAt())
	_, ok := sub.Reason()
	assert.False(t, ok, "reason metadata must be cleared on resolution")

	assert.Error(t, sub.ResolvePastDue(), "resolving an active subscription is invalid")
}

func TestSubscription_MarkRenewed(t *testing.T) {
	sub := newActiveSubscription(t)
	require.NoError(t, sub.MarkPastDue(vo.ReasonPaymentPending, time.Now().UTC()))

	cycle := Cycle{
		Start:           sub.BillingCycleEndAt(),
		End:             sub.BillingCycleEndAt().AddDate(0, 1, 0),
		ProrationFactor: decimal.NewFromInt(1),
	}
	billedAt := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, sub.MarkRenewed(cycle, billedAt))
	assert.Equal(t, vo.StatusActive, sub.Status())
	assert.True(t, sub.BillingCycleStartAt().Equal(cycle.Start))
	assert.True(t, sub.BillingCycleEndAt().Equal(cycle.End))
	// The fixture pays in advance, so the next bill lands at the new cycle
	// open, not a full period later at its close.
	assert.True(t, sub.NextBillingAt().Equal(cycle.Start))
	require.NotNil(t, sub.LastBilledAt())
	assert.True(t, sub.LastBilledAt().Equal(billedAt))
	assert.Nil(t, sub.PastDueAt())
	_, ok := sub.Reason()
	assert.False(t, ok)
}

func TestSubscription_MarkRenewedArrearBillsAtCycleClose(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	sub, err := NewSubscription(
		"sub_arrear1", "cus_1", 1,
		start, end,
		vo.PayInArrear, vo.ChargeAutomatically,
		3, nil,
	)
	require.NoError(t, err)

	cycle := Cycle{Start: end, End: end.AddDate(0, 1, 0), ProrationFactor: decimal.NewFromInt(1)}
	require.NoError(t, sub.MarkRenewed(cycle, end))
	assert.True(t, sub.NextBillingAt().Equal(cycle.End))
}

func TestSubscription_AdvanceRenewalKeepsGraceAheadOfDueInstant(t *testing.T) {
	sub := newActiveSubscription(t)

	cycle := Cycle{
		Start:           sub.BillingCycleEndAt(),
		End:             sub.BillingCycleEndAt().AddDate(0, 1, 0),
		ProrationFactor: decimal.NewFromInt(1),
	}
	require.NoError(t, sub.MarkRenewed(cycle, sub.NextBillingAt()))

	// At the next billing instant the grace window must still lie ahead;
	// parking the subscription then must not hand it an already-elapsed
	// deadline.
	due := sub.NextBillingAt()
	assert.True(t, sub.GracePeriodEndsAt().Equal(due.AddDate(0, 0, 3)))
	require.NoError(t, sub.MarkPastDue(vo.ReasonPaymentMethodNotFound, sub.GracePeriodEndsAt()))
	assert.False(t, sub.GraceElapsed(due))
}

func TestSubscription_Cancel(t *testing.T) {
	sub := newActiveSubscription(t)
	require.NoError(t, sub.MarkPastDue(vo.ReasonPaymentFailed, time.Now().UTC()))
	versionBefore := sub.Version()

	require.NoError(t, sub.Cancel("grace period elapsed"))
	assert.Equal(t, vo.StatusCanceled, sub.Status())
	assert.Nil(t, sub.PastDueAt(), "past_due_at is cleared on cancel")
	assert.Greater(t, sub.Version(), versionBefore)

	// Canceling again is a no-op, not an error.
	versionAfter := sub.Version()
	require.NoError(t, sub.Cancel("again"))
	assert.Equal(t, versionAfter, sub.Version())
}

func TestSubscription_CanceledIsTerminal(t *testing.T) {
	sub := newActiveSubscription(t)
	require.NoError(t, sub.Cancel(""))

	assert.Error(t, sub.MarkPastDue(vo.ReasonPaymentFailed, time.Now().UTC()))
	assert.Error(t, sub.MarkRenewed(Cycle{
		Start: time.Now().UTC(), End: time.Now().UTC().AddDate(0, 1, 0),
	}, time.Now().UTC()))
	assert.Error(t, sub.ChangePlan(99))
}

func TestSubscription_ActivateFromTrial(t *testing.T) {
	trialEnd := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	sub := newTrialSubscription(t, trialEnd)

	assert.Error(t, sub.ActivateFromTrial(trialEnd.AddDate(0, 0, -1)), "trial not over")
	require.NoError(t, sub.ActivateFromTrial(trialEnd))
	assert.Equal(t, vo.StatusActive, sub.Status())
	assert.Error(t, sub.ActivateFromTrial(trialEnd), "already active")
}

func TestSubscription_GraceElapsed(t *testing.T) {
	sub := newActiveSubscription(t)
	deadline := time.Date(2026, 4, 4, 0, 0, 0, 0, time.UTC)

	assert.False(t, sub.GraceElapsed(deadline), "active subscription has no grace deadline")

	require.NoError(t, sub.MarkPastDue(vo.ReasonPaymentFailed, deadline))
	assert.False(t, sub.GraceElapsed(deadline.Add(-time.Second)))
	assert.True(t, sub.GraceElapsed(deadline))
	assert.True(t, sub.GraceElapsed(deadline.AddDate(0, 0, 1)))
}

func TestSubscription_BillingAnchor(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	advance, err := NewSubscription("sub_a", "cus_1", 1, start, end,
		vo.PayInAdvance, vo.SendInvoice, 3, nil)
	require.NoError(t, err)
	assert.True(t, advance.BillingAnchor().Equal(start))
	assert.True(t, advance.GracePeriodEndsAt().Equal(start.AddDate(0, 0, 3)))

	arrear, err := NewSubscription("sub_b", "cus_1", 1, start, end,
		vo.PayInArrear, vo.SendInvoice, 3, nil)
	require.NoError(t, err)
	assert.True(t, arrear.BillingAnchor().Equal(end))
}

func TestSubscription_DueBehaviour(t *testing.T) {
	sub := newActiveSubscription(t)

	_, err := sub.DueBehaviour()
	assert.Error(t, err, "unset behaviour is never guessed")

	sub.SetMetadata(vo.MetaKeyDueBehaviour, "downgrade")
	behaviour, err := sub.DueBehaviour()
	require.NoError(t, err)
	assert.Equal(t, vo.DueBehaviourDowngrade, behaviour)

	sub.SetMetadata(vo.MetaKeyDueBehaviour, "nuke_from_orbit")
	_, err = sub.DueBehaviour()
	assert.Error(t, err)
}

func TestReconstructSubscription_PastDueInvariant(t *testing.T) {
	now := time.Now().UTC()
	params := SubscriptionReconstructParams{
		ID:                  1,
		SID:                 "sub_test123",
		CustomerID:          "cus_1",
		PlanVersionID:       1,
		Status:              vo.StatusPastDue,
		BillingCycleStartAt: now,
		BillingCycleEndAt:   now.AddDate(0, 1, 0),
		NextBillingAt:       now,
		Version:             3,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	// past_due without a deadline is rejected.
	_, err := ReconstructSubscription(params)
	assert.Error(t, err)

	deadline := now.AddDate(0, 0, 3)
	params.PastDueAt = &deadline
	sub, err := ReconstructSubscription(params)
	require.NoError(t, err)
	assert.Equal(t, vo.StatusPastDue, sub.Status())

	// active with a lingering deadline is just as inconsistent.
	params.Status = vo.StatusActive
	_, err = ReconstructSubscription(params)
	assert.Error(t, err)
}

func TestSubscription_IsPaidForCycle(t *testing.T) {
	sub := newActiveSubscription(t)
	assert.False(t, sub.IsPaidForCycle())

	cycle := Cycle{Start: sub.BillingCycleEndAt(), End: sub.BillingCycleEndAt().AddDate(0, 1, 0)}
	require.NoError(t, sub.MarkRenewed(cycle, cycle.Start))
	assert.True(t, sub.IsPaidForCycle())
}
