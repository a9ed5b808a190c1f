package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meterline/meterline/internal/domain/billing"
	apperrors "github.com/meterline/meterline/internal/shared/errors"
	"github.com/meterline/meterline/internal/shared/logger"
)

// GetSubscriptionCommand identifies the subscription to fetch.
type GetSubscriptionCommand struct {
	SubscriptionSID string
}

// GetSubscriptionResult is the subscription's lifecycle snapshot.
type GetSubscriptionResult struct {
	SubscriptionSID     string     `json:"subscription_sid"`
	CustomerID          string     `json:"customer_id"`
	Status              string     `json:"status"`
	PastDueReason       string     `json:"past_due_reason,omitempty"`
	BillingCycleStartAt time.Time  `json:"billing_cycle_start_at"`
	BillingCycleEndAt   time.Time  `json:"billing_cycle_end_at"`
	NextBillingAt       time.Time  `json:"next_billing_at"`
	LastBilledAt        *time.Time `json:"last_billed_at,omitempty"`
	TrialEndsAt         *time.Time `json:"trial_ends_at,omitempty"`
	PastDueAt           *time.Time `json:"past_due_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// GetSubscriptionUseCase reads a subscription for status inspection.
type GetSubscriptionUseCase struct {
	subscriptionRepo billing.SubscriptionRepository
	logger           logger.Interface
}

// NewGetSubscriptionUseCase creates a new GetSubscriptionUseCase.
func NewGetSubscriptionUseCase(subscriptionRepo billing.SubscriptionRepository, logger logger.Interface) *GetSubscriptionUseCase {
	return &GetSubscriptionUseCase{subscriptionRepo: subscriptionRepo, logger: logger}
}

// Execute fetches the subscription by SID.
func (uc *GetSubscriptionUseCase) Execute(ctx context.Context, cmd GetSubscriptionCommand) (*GetSubscriptionResult, error) {
	sub, err := uc.subscriptionRepo.GetBySID(ctx, cmd.SubscriptionSID)
	if err != nil {
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			return nil, apperrors.NewNotFoundError("subscription not found")
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	result := &GetSubscriptionResult{
		SubscriptionSID:     sub.SID(),
		CustomerID:          sub.CustomerID(),
		Status:              string(sub.Status()),
		BillingCycleStartAt: sub.BillingCycleStartAt(),
		BillingCycleEndAt:   sub.BillingCycleEndAt(),
		NextBillingAt:       sub.NextBillingAt(),
		LastBilledAt:        sub.LastBilledAt(),
		TrialEndsAt:         sub.TrialEndsAt(),
		PastDueAt:           sub.PastDueAt(),
		CreatedAt:           sub.CreatedAt(),
	}
	if reason, ok := sub.Reason(); ok {
		result.PastDueReason = string(reason)
	}
	return result, nil
}
