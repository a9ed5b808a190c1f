package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/meterline/meterline/internal/domain/billing"
	"github.com/meterline/meterline/internal/shared/logger"
)

// ActivateTrialsUseCase is the daily batch that promotes trial subscriptions
// whose trial window has ended to active, making them eligible for the
// billing due-scan.
type ActivateTrialsUseCase struct {
	subscriptionRepo billing.SubscriptionRepository
	batchSize        int
	logger           logger.Interface
}

// NewActivateTrialsUseCase creates a new ActivateTrialsUseCase.
func NewActivateTrialsUseCase(
	subscriptionRepo billing.SubscriptionRepository,
	batchSize int,
	logger logger.Interface,
) *ActivateTrialsUseCase {
	if batchSize <= 0 {
		batchSize = DefaultReconcileBatchSize
	}
	return &ActivateTrialsUseCase{
		subscriptionRepo: subscriptionRepo,
		batchSize:        batchSize,
		logger:           logger,
	}
}

// Execute promotes ended trials and returns the number activated.
func (uc *ActivateTrialsUseCase) Execute(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	subs, err := uc.subscriptionRepo.FindTrialEnded(ctx, now, uc.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find ended trials: %w", err)
	}
	if len(subs) == 0 {
		return 0, nil
	}

	activated := 0
	for _, sub := range subs {
		if err := sub.ActivateFromTrial(now); err != nil {
			uc.logger.Warnw("failed to activate trial",
				"subscription_sid", sub.SID(),
				"error", err,
			)
			continue
		}
		if err := uc.subscriptionRepo.Update(ctx, sub); err != nil {
			uc.logger.Errorw("failed to update activated subscription",
				"subscription_sid", sub.SID(),
				"error", err,
			)
			continue
		}
		activated++
	}

	if activated > 0 {
		uc.logger.Infow("trial subscriptions activated", "count", activated)
	}
	return activated, nil
}
