package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/meterline/meterline/internal/domain/billing"
	"github.com/meterline/meterline/internal/infrastructure/persistence/mappers"
	"github.com/meterline/meterline/internal/infrastructure/persistence/models"
	"github.com/meterline/meterline/internal/shared/logger"
)

type PlanVersionRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.PlanVersionMapper
	logger logger.Interface
}

func NewPlanVersionRepository(
	db *gorm.DB,
	logger logger.Interface,
) billing.PlanVersionRepository {
	return &PlanVersionRepositoryImpl{
		db:     db,
		mapper: mappers.NewPlanVersionMapper(),
		logger: logger,
	}
}

func (r *PlanVersionRepositoryImpl) Create(ctx context.Context, plan *billing.PlanVersion) error {
	model, err := r.mapper.ToModel(plan)
	if err != nil {
		r.logger.Errorw("failed to map plan version entity to model", "error", err)
		return fmt.Errorf("failed to map plan version entity: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		r.logger.Errorw("failed to create plan version", "error", err)
		return fmt.Errorf("failed to create plan version: %w", err)
	}

	if err := plan.SetID(model.ID); err != nil {
		return fmt.Errorf("failed to set plan version ID: %w", err)
	}

	r.logger.Infow("plan version created successfully",
		"id", model.ID, "sid", model.SID, "plan_name", model.PlanName, "version", model.VersionNumber)
	return nil
}

func (r *PlanVersionRepositoryImpl) GetByID(ctx context.Context, id uint) (*billing.PlanVersion, error) {
	var model models.PlanVersionModel

	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrPlanVersionNotFound
		}
		r.logger.Errorw("failed to get plan version by ID", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get plan version: %w", err)
	}

	return r.mapper.ToEntity(&model)
}

func (r *PlanVersionRepositoryImpl) GetBySID(ctx context.Context, sid string) (*billing.PlanVersion, error) {
	var model models.PlanVersionModel

	if err := r.db.WithContext(ctx).Where("sid = ?", sid).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrPlanVersionNotFound
		}
		r.logger.Errorw("failed to get plan version by SID", "sid", sid, "error", err)
		return nil, fmt.Errorf("failed to get plan version: %w", err)
	}

	return r.mapper.ToEntity(&model)
}

func (r *PlanVersionRepositoryImpl) ListActive(ctx context.Context) ([]*billing.PlanVersion, error) {
	var planModels []*models.PlanVersionModel

	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("plan_name ASC, version_number DESC").
		Find(&planModels).Error
	if err != nil {
		r.logger.Errorw("failed to list active plan versions", "error", err)
		return nil, fmt.Errorf("failed to list active plan versions: %w", err)
	}

	return r.mapper.ToEntities(planModels)
}

func (r *PlanVersionRepositoryImpl) Deactivate(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).
		Model(&models.PlanVersionModel{}).
		Where("id = ?", id).
		Update("active", false)
	if result.Error != nil {
		r.logger.Errorw("failed to deactivate plan version", "id", id, "error", result.Error)
		return fmt.Errorf("failed to deactivate plan version: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return billing.ErrPlanVersionNotFound
	}

	r.logger.Infow("plan version deactivated", "id", id)
	return nil
}
