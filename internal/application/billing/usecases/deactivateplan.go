package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/meterline/meterline/internal/domain/billing"
	apperrors "github.com/meterline/meterline/internal/shared/errors"
	"github.com/meterline/meterline/internal/shared/logger"
)

// DeactivatePlanVersionCommand identifies the plan version to retire.
type DeactivatePlanVersionCommand struct {
	PlanSID string
}

// DeactivatePlanVersionUseCase retires a plan version from sale. Existing
// subscriptions keep billing against it; only new signups are blocked.
type DeactivatePlanVersionUseCase struct {
	planRepo billing.PlanVersionRepository
	logger   logger.Interface
}

// NewDeactivatePlanVersionUseCase creates a new DeactivatePlanVersionUseCase.
func NewDeactivatePlanVersionUseCase(planRepo billing.PlanVersionRepository, logger logger.Interface) *DeactivatePlanVersionUseCase {
	return &DeactivatePlanVersionUseCase{planRepo: planRepo, logger: logger}
}

// Execute marks the plan version inactive.
func (uc *DeactivatePlanVersionUseCase) Execute(ctx context.Context, cmd DeactivatePlanVersionCommand) error {
	plan, err := uc.planRepo.GetBySID(ctx, cmd.PlanSID)
	if err != nil {
		if errors.Is(err, billing.ErrPlanVersionNotFound) {
			return apperrors.NewNotFoundError("plan version not found")
		}
		return fmt.Errorf("failed to get plan version: %w", err)
	}
	if !plan.Active() {
		return nil
	}

	if err := uc.planRepo.Deactivate(ctx, plan.ID()); err != nil {
		return fmt.Errorf("failed to deactivate plan version: %w", err)
	}

	uc.logger.Infow("plan version deactivated",
		"plan_sid", plan.SID(),
		"plan_name", plan.PlanName(),
		"version", plan.VersionNumber(),
	)
	return nil
}
