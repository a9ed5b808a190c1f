package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/meterline/meterline/internal/domain/billing"
	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
	apperrors "github.com/meterline/meterline/internal/shared/errors"
	"github.com/meterline/meterline/internal/shared/id"
	"github.com/meterline/meterline/internal/shared/logger"
)

// CreateSubscriptionCommand subscribes a customer to an active plan version.
type CreateSubscriptionCommand struct {
	CustomerID             string `json:"customer_id" binding:"required"`
	PlanVersionSID         string `json:"plan_version_sid" binding:"required"`
	DefaultPaymentMethodID string `json:"default_payment_method_id"`
	// SkipTrial starts billing immediately even when the plan has trial days.
	SkipTrial bool `json:"skip_trial"`
}

// CreateSubscriptionResult echoes the created subscription.
type CreateSubscriptionResult struct {
	SubscriptionSID     string     `json:"subscription_sid"`
	Status              string     `json:"status"`
	BillingCycleStartAt time.Time  `json:"billing_cycle_start_at"`
	BillingCycleEndAt   time.Time  `json:"billing_cycle_end_at"`
	TrialEndsAt         *time.Time `json:"trial_ends_at,omitempty"`
}

// CreateSubscriptionUseCase opens subscriptions. The first cycle is anchored
// per the plan's anchor policy; a plan with trial days starts the
// subscription in trial and the trial activation job flips it to active.
type CreateSubscriptionUseCase struct {
	subscriptionRepo billing.SubscriptionRepository
	itemRepo         billing.SubscriptionItemRepository
	planRepo         billing.PlanVersionRepository
	logger           logger.Interface
}

// NewCreateSubscriptionUseCase creates a new CreateSubscriptionUseCase.
func NewCreateSubscriptionUseCase(
	subscriptionRepo billing.SubscriptionRepository,
	itemRepo billing.SubscriptionItemRepository,
	planRepo billing.PlanVersionRepository,
	logger logger.Interface,
) *CreateSubscriptionUseCase {
	return &CreateSubscriptionUseCase{
		subscriptionRepo: subscriptionRepo,
		itemRepo:         itemRepo,
		planRepo:         planRepo,
		logger:           logger,
	}
}

// Execute validates the plan and opens the subscription with its items.
func (uc *CreateSubscriptionUseCase) Execute(ctx context.Context, cmd CreateSubscriptionCommand) (*CreateSubscriptionResult, error) {
	plan, err := uc.planRepo.GetBySID(ctx, cmd.PlanVersionSID)
	if err != nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("plan version %s not found", cmd.PlanVersionSID))
	}
	if !plan.Active() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("plan version %s is no longer active", cmd.PlanVersionSID))
	}
	if plan.RequiresPaymentMethod() &&
		plan.CollectionMethod() == vo.ChargeAutomatically &&
		cmd.DefaultPaymentMethodID == "" {
		return nil, apperrors.NewValidationError("plan requires a default payment method")
	}

	now := time.Now().UTC()
	cycle, err := billing.NextCycle(now, plan.Period())
	if err != nil {
		return nil, fmt.Errorf("failed to compute first cycle: %w", err)
	}

	var trialEndsAt *time.Time
	if plan.TrialDays() > 0 && !cmd.SkipTrial {
		t := now.AddDate(0, 0, plan.TrialDays())
		trialEndsAt = &t
	}

	sub, err := billing.NewSubscription(
		id.MustGenerateWithPrefix(id.PrefixSubscription, id.DefaultLength),
		cmd.CustomerID,
		plan.ID(),
		cycle.Start, cycle.End,
		plan.WhenToBill(),
		plan.CollectionMethod(),
		plan.GracePeriodDays(),
		trialEndsAt,
	)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}
	if cmd.DefaultPaymentMethodID != "" {
		sub.SetDefaultPaymentMethod(cmd.DefaultPaymentMethodID)
	}

	if err := uc.subscriptionRepo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to store subscription: %w", err)
	}

	for _, f := range plan.Features() {
		item, err := billing.NewSubscriptionItem(sub.ID(), f.FeatureSlug, f.Aggregation)
		if err != nil {
			return nil, fmt.Errorf("failed to build subscription item: %w", err)
		}
		if err := uc.itemRepo.Create(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to store subscription item: %w", err)
		}
	}

	uc.logger.Infow("subscription created",
		"subscription_sid", sub.SID(),
		"customer_id", cmd.CustomerID,
		"plan_sid", plan.SID(),
		"status", sub.Status(),
	)
	return &CreateSubscriptionResult{
		SubscriptionSID:     sub.SID(),
		Status:              string(sub.Status()),
		BillingCycleStartAt: sub.BillingCycleStartAt(),
		BillingCycleEndAt:   sub.BillingCycleEndAt(),
		TrialEndsAt:         sub.TrialEndsAt(),
	}, nil
}
