package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meterline/meterline/internal/domain/metering"
	"github.com/meterline/meterline/internal/infrastructure/persistence/models"
	"github.com/meterline/meterline/internal/shared/logger"
)

func decimalFromString(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

type UsageStatsRepositoryImpl struct {
	db     *gorm.DB
	logger logger.Interface
}

func NewUsageStatsRepository(
	db *gorm.DB,
	logger logger.Interface,
) metering.UsageStatsRepository {
	return &UsageStatsRepositoryImpl{db: db, logger: logger}
}

// UpsertDaily writes one batch of rollup rows, replacing totals for rows
// that already exist so reruns converge instead of double-counting.
func (r *UsageStatsRepositoryImpl) UpsertDaily(ctx context.Context, stats []metering.DailyStat) error {
	if len(stats) == 0 {
		return nil
	}

	rows := make([]models.UsageDailyStatModel, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, models.UsageDailyStatModel{
			CustomerID:  s.CustomerID,
			FeatureSlug: s.FeatureSlug,
			Day:         s.Day,
			Total:       s.Total,
			EventCount:  s.EventCount,
		})
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "customer_id"}, {Name: "feature_slug"}, {Name: "day"}},
			DoUpdates: clause.AssignmentColumns([]string{"total", "event_count", "updated_at"}),
		}).
		Create(&rows).Error
	if err != nil {
		r.logger.Errorw("failed to upsert daily usage stats", "rows", len(rows), "error", err)
		return fmt.Errorf("failed to upsert daily usage stats: %w", err)
	}

	return nil
}

func (r *UsageStatsRepositoryImpl) ListDaily(ctx context.Context, customerID string, start, end time.Time) ([]metering.DailyStat, error) {
	var rows []models.UsageDailyStatModel

	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND day >= ? AND day < ?", customerID, start, end).
		Order("day ASC").
		Find(&rows).Error
	if err != nil {
		r.logger.Errorw("failed to list daily usage stats", "customer_id", customerID, "error", err)
		return nil, fmt.Errorf("failed to list daily usage stats: %w", err)
	}

	stats := make([]metering.DailyStat, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, metering.DailyStat{
			CustomerID:  row.CustomerID,
			FeatureSlug: row.FeatureSlug,
			Day:         row.Day,
			Total:       row.Total,
			EventCount:  row.EventCount,
		})
	}
	return stats, nil
}
