package usecases

import (
	"context"
	"fmt"

	"github.com/meterline/meterline/internal/domain/billing"
	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
	"github.com/meterline/meterline/internal/shared/logger"
)

// GetBillingStatsResult holds per-status subscription counts for the
// operational overview.
type GetBillingStatsResult struct {
	TrialSubscriptions    int64 `json:"trial_subscriptions"`
	ActiveSubscriptions   int64 `json:"active_subscriptions"`
	PastDueSubscriptions  int64 `json:"past_due_subscriptions"`
	CanceledSubscriptions int64 `json:"canceled_subscriptions"`
}

// GetBillingStatsUseCase counts subscriptions by lifecycle status.
type GetBillingStatsUseCase struct {
	subscriptionRepo billing.SubscriptionRepository
	logger           logger.Interface
}

// NewGetBillingStatsUseCase creates a new GetBillingStatsUseCase.
func NewGetBillingStatsUseCase(subscriptionRepo billing.SubscriptionRepository, logger logger.Interface) *GetBillingStatsUseCase {
	return &GetBillingStatsUseCase{subscriptionRepo: subscriptionRepo, logger: logger}
}

// Execute gathers the subscription counts for every lifecycle status.
func (uc *GetBillingStatsUseCase) Execute(ctx context.Context) (*GetBillingStatsResult, error) {
	result := &GetBillingStatsResult{}
	for _, s := range []struct {
		status vo.SubscriptionStatus
		target *int64
	}{
		{vo.StatusTrial, &result.TrialSubscriptions},
		{vo.StatusActive, &result.ActiveSubscriptions},
		{vo.StatusPastDue, &result.PastDueSubscriptions},
		{vo.StatusCanceled, &result.CanceledSubscriptions},
	} {
		count, err := uc.subscriptionRepo.CountByStatus(ctx, s.status)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s subscriptions: %w", s.status, err)
		}
		*s.target = count
	}
	return result, nil
}
