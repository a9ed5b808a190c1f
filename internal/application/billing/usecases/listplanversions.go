package usecases

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meterline/meterline/internal/domain/billing"
	"github.com/meterline/meterline/internal/shared/logger"
)

// PlanFeatureView is one metered feature of a listed plan version.
type PlanFeatureView struct {
	FeatureSlug     string          `json:"feature_slug"`
	UnitAmountCents int64           `json:"unit_amount_cents"`
	IncludedUnits   decimal.Decimal `json:"included_units"`
	Aggregation     string          `json:"aggregation"`
}

// PlanVersionView is a catalog entry for one active plan version.
type PlanVersionView struct {
	PlanSID          string            `json:"plan_sid"`
	PlanName         string            `json:"plan_name"`
	VersionNumber    int               `json:"version_number"`
	Currency         string            `json:"currency"`
	PeriodUnit       string            `json:"period_unit"`
	IntervalCount    int               `json:"interval_count"`
	WhenToBill       string            `json:"when_to_bill"`
	CollectionMethod string            `json:"collection_method"`
	TrialDays        int               `json:"trial_days"`
	Features         []PlanFeatureView `json:"features"`
}

// ListPlanVersionsResult is the active plan catalog.
type ListPlanVersionsResult struct {
	Plans []PlanVersionView `json:"plans"`
}

// ListPlanVersionsUseCase lists the active plan catalog for subscription
// creation and downgrade target selection.
type ListPlanVersionsUseCase struct {
	planRepo billing.PlanVersionRepository
	logger   logger.Interface
}

// NewListPlanVersionsUseCase creates a new ListPlanVersionsUseCase.
func NewListPlanVersionsUseCase(planRepo billing.PlanVersionRepository, logger logger.Interface) *ListPlanVersionsUseCase {
	return &ListPlanVersionsUseCase{planRepo: planRepo, logger: logger}
}

// Execute returns every active plan version.
func (uc *ListPlanVersionsUseCase) Execute(ctx context.Context) (*ListPlanVersionsResult, error) {
	plans, err := uc.planRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list plan versions: %w", err)
	}

	views := make([]PlanVersionView, 0, len(plans))
	for _, plan := range plans {
		features := make([]PlanFeatureView, 0, len(plan.Features()))
		for _, f := range plan.Features() {
			features = append(features, PlanFeatureView{
				FeatureSlug:     f.FeatureSlug,
				UnitAmountCents: f.UnitAmountCents,
				IncludedUnits:   f.IncludedUnits,
				Aggregation:     string(f.Aggregation),
			})
		}
		views = append(views, PlanVersionView{
			PlanSID:          plan.SID(),
			PlanName:         plan.PlanName(),
			VersionNumber:    plan.VersionNumber(),
			Currency:         plan.Currency(),
			PeriodUnit:       string(plan.Period().Unit),
			IntervalCount:    plan.Period().IntervalCount,
			WhenToBill:       string(plan.WhenToBill()),
			CollectionMethod: string(plan.CollectionMethod()),
			TrialDays:        plan.TrialDays(),
			Features:         features,
		})
	}
	return &ListPlanVersionsResult{Plans: views}, nil
}
