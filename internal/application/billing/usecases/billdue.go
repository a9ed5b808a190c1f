package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/meterline/meterline/internal/domain/billing"
	"github.com/meterline/meterline/internal/shared/logger"
)

// BillDueSubscriptionsUseCase is the recurring scan that feeds due
// subscriptions into the billing task. Each subscription is billed as an
// independent unit of work; one failure never blocks the batch.
type BillDueSubscriptionsUseCase struct {
	subscriptionRepo billing.SubscriptionRepository
	processBilling   *ProcessBillingUseCase
	batchSize        int
	logger           logger.Interface
}

// NewBillDueSubscriptionsUseCase creates a new BillDueSubscriptionsUseCase.
func NewBillDueSubscriptionsUseCase(
	subscriptionRepo billing.SubscriptionRepository,
	processBilling *ProcessBillingUseCase,
	batchSize int,
	logger logger.Interface,
) *BillDueSubscriptionsUseCase {
	if batchSize <= 0 {
		batchSize = DefaultReconcileBatchSize
	}
	return &BillDueSubscriptionsUseCase{
		subscriptionRepo: subscriptionRepo,
		processBilling:   processBilling,
		batchSize:        batchSize,
		logger:           logger,
	}
}

// Execute bills all due subscriptions and returns the number billed.
func (uc *BillDueSubscriptionsUseCase) Execute(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	subs, err := uc.subscriptionRepo.FindDue(ctx, now, uc.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find due subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return 0, nil
	}

	billed := 0
	for _, sub := range subs {
		if ctx.Err() != nil {
			break
		}
		result, err := uc.processBilling.Execute(ctx, ProcessBillingCommand{
			SubscriptionID: sub.ID(),
			CurrentDate:    now,
		})
		if err != nil {
			uc.logger.Errorw("failed to bill subscription",
				"subscription_sid", sub.SID(),
				"error", err,
			)
			continue
		}
		if result.Billed {
			billed++
		}
	}
	return billed, nil
}
