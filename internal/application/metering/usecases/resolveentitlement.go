package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meterline/meterline/internal/domain/billing"
	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
	"github.com/meterline/meterline/internal/domain/metering"
	"github.com/meterline/meterline/internal/shared/logger"
)

// ResolveEntitlementCommand asks whether a customer may use a feature now.
type ResolveEntitlementCommand struct {
	CustomerID  string `json:"customer_id" binding:"required"`
	FeatureSlug string `json:"feature_slug" binding:"required"`
	// SkipCache forces a fresh resolution, bypassing the read-through cache.
	SkipCache bool `json:"-"`
}

// ResolveEntitlementUseCase derives the customer's current entitlement for a
// feature from the subscription, its plan version and aggregated usage. The
// result is cached short-term; subscription mutations invalidate the
// customer's cached entries so the next call re-resolves.
type ResolveEntitlementUseCase struct {
	subscriptionRepo billing.SubscriptionRepository
	itemRepo         billing.SubscriptionItemRepository
	planRepo         billing.PlanVersionRepository
	usage            UsageAggregator
	cache            EntitlementCache
	logger           logger.Interface
}

// NewResolveEntitlementUseCase creates a new ResolveEntitlementUseCase.
func NewResolveEntitlementUseCase(
	subscriptionRepo billing.SubscriptionRepository,
	itemRepo billing.SubscriptionItemRepository,
	planRepo billing.PlanVersionRepository,
	usage UsageAggregator,
	cache EntitlementCache,
	logger logger.Interface,
) *ResolveEntitlementUseCase {
	return &ResolveEntitlementUseCase{
		subscriptionRepo: subscriptionRepo,
		itemRepo:         itemRepo,
		planRepo:         planRepo,
		usage:            usage,
		cache:            cache,
		logger:           logger,
	}
}

// Execute returns the entitlement, resolving and caching on a miss.
func (uc *ResolveEntitlementUseCase) Execute(ctx context.Context, cmd ResolveEntitlementCommand) (*metering.Entitlement, error) {
	if uc.cache != nil && !cmd.SkipCache {
		if ent, err := uc.cache.Get(ctx, cmd.CustomerID, cmd.FeatureSlug); err == nil && ent != nil {
			return ent, nil
		} else if err != nil {
			uc.logger.Warnw("entitlement cache read failed",
				"customer_id", cmd.CustomerID, "error", err)
		}
	}

	ent, err := uc.resolve(ctx, cmd.CustomerID, cmd.FeatureSlug)
	if err != nil {
		return nil, err
	}

	if uc.cache != nil {
		if err := uc.cache.Set(ctx, ent); err != nil {
			uc.logger.Warnw("entitlement cache write failed",
				"customer_id", cmd.CustomerID, "error", err)
		}
	}
	return ent, nil
}

func (uc *ResolveEntitlementUseCase) resolve(ctx context.Context, customerID, featureSlug string) (*metering.Entitlement, error) {
	now := time.Now().UTC()
	denied := &metering.Entitlement{
		CustomerID:  customerID,
		FeatureSlug: featureSlug,
		Entitled:    false,
		ResolvedAt:  now,
	}

	sub, err := uc.subscriptionRepo.GetActiveByCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			return denied, nil
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub.Status() == vo.StatusCanceled {
		return denied, nil
	}

	plan, err := uc.planRepo.GetByID(ctx, sub.PlanVersionID())
	if err != nil {
		return nil, fmt.Errorf("failed to get plan version: %w", err)
	}
	feature, ok := plan.Feature(featureSlug)
	if !ok {
		return denied, nil
	}

	items, err := uc.itemRepo.GetBySubscriptionID(ctx, sub.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription items: %w", err)
	}
	method := metering.AggregationSum
	for _, item := range items {
		if item.FeatureSlug() == featureSlug {
			method = item.Aggregation()
			break
		}
	}

	used, err := uc.usage.GetAggregatedUsage(ctx,
		customerID, featureSlug,
		sub.BillingCycleStartAt(), sub.BillingCycleEndAt(),
		method,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}

	// Features with an overage price have no hard quota; purely included
	// features cap at their included units.
	unlimited := feature.UnitAmountCents > 0
	remaining := decimal.Zero
	if !unlimited {
		remaining = feature.IncludedUnits.Sub(used)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
	}

	return &metering.Entitlement{
		CustomerID:    customerID,
		FeatureSlug:   featureSlug,
		Entitled:      true,
		IncludedUnits: feature.IncludedUnits,
		Used:          used,
		Unlimited:     unlimited,
		Remaining:     remaining,
		PeriodStart:   sub.BillingCycleStartAt(),
		PeriodEnd:     sub.BillingCycleEndAt(),
		ResolvedAt:    now,
	}, nil
}
