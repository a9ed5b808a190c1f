package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/meterline/meterline/internal/domain/billing"
	"github.com/meterline/meterline/internal/domain/metering"
	"github.com/meterline/meterline/internal/infrastructure/persistence/models"
	"github.com/meterline/meterline/internal/shared/logger"
)

type SubscriptionItemRepositoryImpl struct {
	db     *gorm.DB
	logger logger.Interface
}

func NewSubscriptionItemRepository(
	db *gorm.DB,
	logger logger.Interface,
) billing.SubscriptionItemRepository {
	return &SubscriptionItemRepositoryImpl{db: db, logger: logger}
}

func (r *SubscriptionItemRepositoryImpl) Create(ctx context.Context, item *billing.SubscriptionItem) error {
	model := &models.SubscriptionItemModel{
		SubscriptionID: item.SubscriptionID(),
		FeatureSlug:    item.FeatureSlug(),
		Aggregation:    string(item.Aggregation()),
		PeriodClosedAt: item.PeriodClosedAt(),
		CreatedAt:      item.CreatedAt(),
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		r.logger.Errorw("failed to create subscription item", "error", err)
		return fmt.Errorf("failed to create subscription item: %w", err)
	}

	if err := item.SetID(model.ID); err != nil {
		return fmt.Errorf("failed to set subscription item ID: %w", err)
	}
	return nil
}

func (r *SubscriptionItemRepositoryImpl) GetBySubscriptionID(ctx context.Context, subscriptionID uint) ([]*billing.SubscriptionItem, error) {
	var itemModels []*models.SubscriptionItemModel

	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("id ASC").
		Find(&itemModels).Error
	if err != nil {
		r.logger.Errorw("failed to get subscription items",
			"subscription_id", subscriptionID, "error", err)
		return nil, fmt.Errorf("failed to get subscription items: %w", err)
	}

	items := make([]*billing.SubscriptionItem, 0, len(itemModels))
	for _, m := range itemModels {
		item, err := billing.ReconstructSubscriptionItem(
			m.ID,
			m.SubscriptionID,
			m.FeatureSlug,
			metering.AggregationMethod(m.Aggregation),
			m.PeriodClosedAt,
			m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to map subscription item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *SubscriptionItemRepositoryImpl) Update(ctx context.Context, item *billing.SubscriptionItem) error {
	result := r.db.WithContext(ctx).
		Model(&models.SubscriptionItemModel{}).
		Where("id = ?", item.ID()).
		Update("period_closed_at", item.PeriodClosedAt())
	if result.Error != nil {
		r.logger.Errorw("failed to update subscription item", "id", item.ID(), "error", result.Error)
		return fmt.Errorf("failed to update subscription item: %w", result.Error)
	}
	return nil
}
