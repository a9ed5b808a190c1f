package usecases

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meterline/meterline/internal/domain/billing"
	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
	"github.com/meterline/meterline/internal/domain/metering"
	apperrors "github.com/meterline/meterline/internal/shared/errors"
	"github.com/meterline/meterline/internal/shared/id"
	"github.com/meterline/meterline/internal/shared/logger"
)

// PlanFeatureInput is one metered feature of a plan version.
type PlanFeatureInput struct {
	FeatureSlug     string          `json:"feature_slug" binding:"required"`
	UnitAmountCents int64           `json:"unit_amount_cents"`
	IncludedUnits   decimal.Decimal `json:"included_units"`
	Aggregation     string          `json:"aggregation" binding:"required"`
}

// CreatePlanVersionCommand publishes a new version of a plan. Versions are
// immutable once created; pricing changes mean a new version.
type CreatePlanVersionCommand struct {
	PlanName              string             `json:"plan_name" binding:"required"`
	VersionNumber         int                `json:"version_number" binding:"required,min=1"`
	Currency              string             `json:"currency" binding:"required,len=3"`
	PeriodUnit            string             `json:"period_unit" binding:"required"`
	IntervalCount         int                `json:"interval_count" binding:"required,min=1"`
	AnchorPolicy          string             `json:"anchor_policy"`
	AnchorDay             int                `json:"anchor_day"`
	WhenToBill            string             `json:"when_to_bill" binding:"required"`
	CollectionMethod      string             `json:"collection_method" binding:"required"`
	RequiresPaymentMethod bool               `json:"requires_payment_method"`
	GracePeriodDays       int                `json:"grace_period_days"`
	TrialDays             int                `json:"trial_days"`
	Features              []PlanFeatureInput `json:"features" binding:"required,min=1"`
}

// CreatePlanVersionResult echoes the created version.
type CreatePlanVersionResult struct {
	PlanSID       string `json:"plan_sid"`
	PlanName      string `json:"plan_name"`
	VersionNumber int    `json:"version_number"`
}

// CreatePlanVersionUseCase publishes plan versions to the catalog.
type CreatePlanVersionUseCase struct {
	planRepo billing.PlanVersionRepository
	logger   logger.Interface
}

// NewCreatePlanVersionUseCase creates a new CreatePlanVersionUseCase.
func NewCreatePlanVersionUseCase(planRepo billing.PlanVersionRepository, logger logger.Interface) *CreatePlanVersionUseCase {
	return &CreatePlanVersionUseCase{planRepo: planRepo, logger: logger}
}

// Execute validates and stores the new plan version.
func (uc *CreatePlanVersionUseCase) Execute(ctx context.Context, cmd CreatePlanVersionCommand) (*CreatePlanVersionResult, error) {
	anchor := vo.AnchorCreation
	if cmd.AnchorPolicy != "" {
		anchor = vo.AnchorPolicy(cmd.AnchorPolicy)
	}
	period, err := vo.NewBillingPeriod(vo.PeriodUnit(cmd.PeriodUnit), cmd.IntervalCount, anchor, cmd.AnchorDay)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	features := make([]billing.PlanFeature, 0, len(cmd.Features))
	for _, f := range cmd.Features {
		features = append(features, billing.PlanFeature{
			FeatureSlug:     f.FeatureSlug,
			UnitAmountCents: f.UnitAmountCents,
			IncludedUnits:   f.IncludedUnits,
			Aggregation:     metering.AggregationMethod(f.Aggregation),
		})
	}

	plan, err := billing.NewPlanVersion(
		id.MustGenerateWithPrefix(id.PrefixPlan, id.DefaultLength),
		cmd.PlanName,
		cmd.VersionNumber,
		cmd.Currency,
		period,
		vo.WhenToBill(cmd.WhenToBill),
		vo.CollectionMethod(cmd.CollectionMethod),
		cmd.RequiresPaymentMethod,
		cmd.GracePeriodDays,
		cmd.TrialDays,
		features,
	)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	if err := uc.planRepo.Create(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to store plan version: %w", err)
	}

	uc.logger.Infow("plan version published",
		"plan_sid", plan.SID(),
		"plan_name", plan.PlanName(),
		"version", plan.VersionNumber(),
	)
	return &CreatePlanVersionResult{
		PlanSID:       plan.SID(),
		PlanName:      plan.PlanName(),
		VersionNumber: plan.VersionNumber(),
	}, nil
}
