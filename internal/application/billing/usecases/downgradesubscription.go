package usecases

import (
	"context"
	"fmt"

	"github.com/meterline/meterline/internal/domain/billing"
	"github.com/meterline/meterline/internal/shared/logger"
)

// DowngradeSubscriptionCommand moves a subscription to a lower-tier plan
// version instead of canceling it outright.
type DowngradeSubscriptionCommand struct {
	SubscriptionID        uint
	FallbackPlanVersionID uint
}

// DowngradeSubscriptionUseCase applies the downgrade due behaviour: the
// subscription switches to the fallback plan version and returns to active.
// Re-running on an already-downgraded subscription is a no-op.
type DowngradeSubscriptionUseCase struct {
	subscriptionRepo billing.SubscriptionRepository
	planRepo         billing.PlanVersionRepository
	entitlements     EntitlementInvalidator
	logger           logger.Interface
}

// NewDowngradeSubscriptionUseCase creates a new DowngradeSubscriptionUseCase.
func NewDowngradeSubscriptionUseCase(
	subscriptionRepo billing.SubscriptionRepository,
	planRepo billing.PlanVersionRepository,
	entitlements EntitlementInvalidator,
	logger logger.Interface,
) *DowngradeSubscriptionUseCase {
	return &DowngradeSubscriptionUseCase{
		subscriptionRepo: subscriptionRepo,
		planRepo:         planRepo,
		entitlements:     entitlements,
		logger:           logger,
	}
}

// Execute downgrades the subscription to the fallback plan version.
func (uc *DowngradeSubscriptionUseCase) Execute(ctx context.Context, cmd DowngradeSubscriptionCommand) error {
	fallback, err := uc.planRepo.GetByID(ctx, cmd.FallbackPlanVersionID)
	if err != nil {
		return fmt.Errorf("failed to get fallback plan version: %w", err)
	}
	if !fallback.Active() {
		return billing.ErrPlanVersionInactive
	}

	sub, err := uc.subscriptionRepo.GetByID(ctx, cmd.SubscriptionID)
	if err != nil {
		return fmt.Errorf("failed to get subscription: %w", err)
	}

	alreadyOnFallback := sub.PlanVersionID() == cmd.FallbackPlanVersionID

	if err := sub.ChangePlan(cmd.FallbackPlanVersionID); err != nil {
		return fmt.Errorf("failed to change plan: %w", err)
	}
	if sub.PastDueAt() != nil {
		if err := sub.ResolvePastDue(); err != nil {
			return fmt.Errorf("failed to resolve past due: %w", err)
		}
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

	if !alreadyOnFallback {
		uc.logger.Infow("subscription downgraded",
			"subscription_sid", sub.SID(),
			"fallback_plan_version_id", cmd.FallbackPlanVersionID,
		)
	}
	return nil
}
