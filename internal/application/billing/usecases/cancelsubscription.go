package usecases

import (
	"context"
	"fmt"

	"github.com/meterline/meterline/internal/domain/billing"
	"github.com/meterline/meterline/internal/shared/logger"
)

// CancelSubscriptionCommand identifies the subscription to cancel, by
// internal ID (scheduler dispatch) or by SID (API callers).
type CancelSubscriptionCommand struct {
	SubscriptionID  uint
	SubscriptionSID string
	Note            string
}

// CancelSubscriptionUseCase moves a subscription to its terminal state.
// Canceling an already-canceled subscription is a no-op, which makes the
// reconciliation scheduler's dispatch idempotent.
type CancelSubscriptionUseCase struct {
	subscriptionRepo billing.SubscriptionRepository
	entitlements     EntitlementInvalidator
	logger           logger.Interface
}

// NewCancelSubscriptionUseCase creates a new CancelSubscriptionUseCase.
func NewCancelSubscriptionUseCase(
	subscriptionRepo billing.SubscriptionRepository,
	entitlements EntitlementInvalidator,
	logger logger.Interface,
) *CancelSubscriptionUseCase {
	return &CancelSubscriptionUseCase{
		subscriptionRepo: subscriptionRepo,
		entitlements:     entitlements,
		logger:           logger,
	}
}

// Execute cancels the subscription.
func (uc *CancelSubscriptionUseCase) Execute(ctx context.Context, cmd CancelSubscriptionCommand) error {
	var (
		sub *billing.Subscription
		err error
	)
	if cmd.SubscriptionSID != "" {
		sub, err = uc.subscriptionRepo.GetBySID(ctx, cmd.SubscriptionSID)
	} else {
		sub, err = uc.subscriptionRepo.GetByID(ctx, cmd.SubscriptionID)
	}
	if err != nil {
		return fmt.Errorf("failed to get subscription: %w", err)
	}

	if err := sub.Cancel(cmd.Note); err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}

	if err := uc.subscriptionRepo.Update(ctx, sub); err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	if uc.entitlements != nil {
		if err := uc.entitlements.InvalidateCustomer(ctx, sub.CustomerID()); err != nil {
			uc.logger.Warnw("failed to invalidate entitlement cache",
				"customer_id", sub.CustomerID(), "error", err)
		}
	}

	uc.logger.Infow("subscription canceled",
		"subscription_sid", sub.SID(),
		"note", cmd.Note,
	)
	return nil
}
