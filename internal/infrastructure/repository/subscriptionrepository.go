package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/meterline/meterline/internal/domain/billing"
	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
	"github.com/meterline/meterline/internal/infrastructure/persistence/mappers"
	"github.com/meterline/meterline/internal/infrastructure/persistence/models"
	"github.com/meterline/meterline/internal/shared/logger"
)

type SubscriptionRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.SubscriptionMapper
	logger logger.Interface
}

func NewSubscriptionRepository(
	db *gorm.DB,
	logger logger.Interface,
) billing.SubscriptionRepository {
	return &SubscriptionRepositoryImpl{
		db:     db,
		mapper: mappers.NewSubscriptionMapper(),
		logger: logger,
	}
}

func (r *SubscriptionRepositoryImpl) Create(ctx context.Context, sub *billing.Subscription) error {
	model, err := r.mapper.ToModel(sub)
	if err != nil {
		r.logger.Errorw("failed to map subscription entity to model", "error", err)
		return fmt.Errorf("failed to map subscription entity: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		r.logger.Errorw("failed to create subscription in database", "error", err)
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	if err := sub.SetID(model.ID); err != nil {
		return fmt.Errorf("failed to set subscription ID: %w", err)
	}

	r.logger.Infow("subscription created successfully",
		"id", model.ID, "sid", model.SID, "customer_id", model.CustomerID)
	return nil
}

func (r *SubscriptionRepositoryImpl) GetByID(ctx context.Context, id uint) (*billing.Subscription, error) {
	var model models.SubscriptionModel

	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrSubscriptionNotFound
		}
		r.logger.Errorw("failed to get subscription by ID", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return r.mapper.ToEntity(&model)
}

func (r *SubscriptionRepositoryImpl) GetBySID(ctx context.Context, sid string) (*billing.Subscription, error) {
	var model models.SubscriptionModel

	if err := r.db.WithContext(ctx).Where("sid = ?", sid).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrSubscriptionNotFound
		}
		r.logger.Errorw("failed to get subscription by SID", "sid", sid, "error", err)
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return r.mapper.ToEntity(&model)
}

func (r *SubscriptionRepositoryImpl) GetActiveByCustomer(ctx context.Context, customerID string) (*billing.Subscription, error) {
	var model models.SubscriptionModel

	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND status != ?", customerID, string(vo.StatusCanceled)).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrSubscriptionNotFound
		}
		r.logger.Errorw("failed to get subscription by customer", "customer_id", customerID, "error", err)
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return r.mapper.ToEntity(&model)
}

// Update applies the aggregate as one conditional update guarded by the
// optimistic version. Zero affected rows means a concurrent writer won;
// the caller re-reads and re-evaluates.
func (r *SubscriptionRepositoryImpl) Update(ctx context.Context, sub *billing.Subscription) error {
	model, err := r.mapper.ToModel(sub)
	if err != nil {
		r.logger.Errorw("failed to map subscription entity to model", "error", err)
		return fmt.Errorf("failed to map subscription entity: %w", err)
	}

	result := r.db.WithContext(ctx).
		Model(&models.SubscriptionModel{}).
		Where("id = ? AND version = ?", model.ID, model.Version-1).
		Updates(map[string]any{
			"status":                    model.Status,
			"plan_version_id":           model.PlanVersionID,
			"billing_cycle_start_at":    model.BillingCycleStartAt,
			"billing_cycle_end_at":      model.BillingCycleEndAt,
			"next_billing_at":           model.NextBillingAt,
			"last_billed_at":            model.LastBilledAt,
			"trial_ends_at":             model.TrialEndsAt,
			"past_due_at":               model.PastDueAt,
			"default_payment_method_id": model.DefaultPaymentMethodID,
			"metadata":                  model.Metadata,
			"version":                   model.Version,
			"updated_at":                model.UpdatedAt,
		})
	if result.Error != nil {
		r.logger.Errorw("failed to update subscription", "id", model.ID, "error", result.Error)
		return fmt.Errorf("failed to update subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return billing.ErrStaleSubscription
	}

	return nil
}

func (r *SubscriptionRepositoryImpl) FindDue(ctx context.Context, now time.Time, limit int) ([]*billing.Subscription, error) {
	var subModels []*models.SubscriptionModel

	err := r.db.WithContext(ctx).
		Where("next_billing_at <= ? AND status NOT IN ?", now,
			[]string{string(vo.StatusCanceled), string(vo.StatusTrial)}).
		Order("next_billing_at ASC").
		Limit(limit).
		Find(&subModels).Error
	if err != nil {
		r.logger.Errorw("failed to find due subscriptions", "error", err)
		return nil, fmt.Errorf("failed to find due subscriptions: %w", err)
	}

	return r.mapper.ToEntities(subModels)
}

func (r *SubscriptionRepositoryImpl) FindPastDueElapsed(ctx context.Context, now time.Time, limit int) ([]*billing.Subscription, error) {
	var subModels []*models.SubscriptionModel

	err := r.db.WithContext(ctx).
		Where("status = ? AND past_due_at <= ?", string(vo.StatusPastDue), now).
		Order("past_due_at ASC").
		Limit(limit).
		Find(&subModels).Error
	if err != nil {
		r.logger.Errorw("failed to find elapsed past_due subscriptions", "error", err)
		return nil, fmt.Errorf("failed to find elapsed past_due subscriptions: %w", err)
	}

	return r.mapper.ToEntities(subModels)
}

func (r *SubscriptionRepositoryImpl) FindTrialEnded(ctx context.Context, now time.Time, limit int) ([]*billing.Subscription, error) {
	var subModels []*models.SubscriptionModel

	err := r.db.WithContext(ctx).
		Where("status = ? AND trial_ends_at <= ?", string(vo.StatusTrial), now).
		Order("trial_ends_at ASC").
		Limit(limit).
		Find(&subModels).Error
	if err != nil {
		r.logger.Errorw("failed to find ended trials", "error", err)
		return nil, fmt.Errorf("failed to find ended trials: %w", err)
	}

	return r.mapper.ToEntities(subModels)
}

func (r *SubscriptionRepositoryImpl) CountByStatus(ctx context.Context, status vo.SubscriptionStatus) (int64, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&models.SubscriptionModel{}).
		Where("status = ?", string(status)).
		Count(&count).Error
	if err != nil {
		r.logger.Errorw("failed to count subscriptions", "status", status, "error", err)
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	return count, nil
}
