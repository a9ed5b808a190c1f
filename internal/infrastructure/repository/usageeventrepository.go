package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/meterline/meterline/internal/domain/metering"
	"github.com/meterline/meterline/internal/infrastructure/persistence/mappers"
	"github.com/meterline/meterline/internal/infrastructure/persistence/models"
	apperrors "github.com/meterline/meterline/internal/shared/errors"
	"github.com/meterline/meterline/internal/shared/logger"
)

type UsageEventRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.UsageEventMapper
	logger logger.Interface
}

func NewUsageEventRepository(
	db *gorm.DB,
	logger logger.Interface,
) metering.UsageEventRepository {
	return &UsageEventRepositoryImpl{
		db:     db,
		mapper: mappers.NewUsageEventMapper(),
		logger: logger,
	}
}

// Insert relies on the unique idempotence key index for authoritative
// dedup; a duplicate delivery surfaces as ErrDuplicateEvent.
func (r *UsageEventRepositoryImpl) Insert(ctx context.Context, ev *metering.UsageEvent) error {
	model, err := r.mapper.ToModel(ev)
	if err != nil {
		r.logger.Errorw("failed to map usage event entity to model", "error", err)
		return fmt.Errorf("failed to map usage event entity: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if apperrors.IsDuplicateError(err) {
			return metering.ErrDuplicateEvent
		}
		r.logger.Errorw("failed to insert usage event", "error", err)
		return fmt.Errorf("failed to insert usage event: %w", err)
	}

	if err := ev.SetID(model.ID); err != nil {
		return fmt.Errorf("failed to set usage event ID: %w", err)
	}
	return nil
}

func (r *UsageEventRepositoryImpl) GetByIdempotenceKey(ctx context.Context, key string) (*metering.UsageEvent, error) {
	var model models.UsageEventModel

	if err := r.db.WithContext(ctx).Where("idempotence_key = ?", key).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, metering.ErrEventNotFound
		}
		r.logger.Errorw("failed to get usage event by idempotence key", "error", err)
		return nil, fmt.Errorf("failed to get usage event: %w", err)
	}

	return r.mapper.ToEntity(&model)
}

func (r *UsageEventRepositoryImpl) ListForWindow(ctx context.Context, customerID, featureSlug string, start, end time.Time) ([]*metering.UsageEvent, error) {
	var eventModels []*models.UsageEventModel

	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND feature_slug = ? AND timestamp >= ? AND timestamp < ?",
			customerID, featureSlug, start, end).
		Order("timestamp ASC").
		Find(&eventModels).Error
	if err != nil {
		r.logger.Errorw("failed to list usage events",
			"customer_id", customerID, "feature_slug", featureSlug, "error", err)
		return nil, fmt.Errorf("failed to list usage events: %w", err)
	}

	return r.mapper.ToEntities(eventModels)
}

func (r *UsageEventRepositoryImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.UsageEventModel{})
	if result.Error != nil {
		r.logger.Errorw("failed to delete expired usage events", "error", result.Error)
		return 0, fmt.Errorf("failed to delete expired usage events: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func (r *UsageEventRepositoryImpl) AggregateDaily(ctx context.Context, day time.Time) ([]metering.DailyStat, error) {
	dayEnd := day.AddDate(0, 0, 1)

	type dailyRow struct {
		CustomerID  string
		FeatureSlug string
		Total       string
		EventCount  int64
	}
	var rows []dailyRow

	err := r.db.WithContext(ctx).
		Model(&models.UsageEventModel{}).
		Select("customer_id, feature_slug, SUM(`usage`) AS total, COUNT(*) AS event_count").
		Where("timestamp >= ? AND timestamp < ?", day, dayEnd).
		Group("customer_id, feature_slug").
		Scan(&rows).Error
	if err != nil {
		r.logger.Errorw("failed to aggregate daily usage", "day", day, "error", err)
		return nil, fmt.Errorf("failed to aggregate daily usage: %w", err)
	}

	stats := make([]metering.DailyStat, 0, len(rows))
	for _, row := range rows {
		total, err := decimalFromString(row.Total)
		if err != nil {
			return nil, fmt.Errorf("failed to parse usage total: %w", err)
		}
		stats = append(stats, metering.DailyStat{
			CustomerID:  row.CustomerID,
			FeatureSlug: row.FeatureSlug,
			Day:         day,
			Total:       total,
			EventCount:  row.EventCount,
		})
	}
	return stats, nil
}
