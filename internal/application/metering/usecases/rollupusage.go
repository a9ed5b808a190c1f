package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/meterline/meterline/internal/domain/metering"
	"github.com/meterline/meterline/internal/shared/biztime"
	"github.com/meterline/meterline/internal/shared/logger"
)

// RollupUsageUseCase folds the previous day's raw usage events into daily
// stats and trims raw events past the retention horizon. It runs once per
// day from the scheduler; the upsert makes reruns safe.
type RollupUsageUseCase struct {
	eventRepo     metering.UsageEventRepository
	statsRepo     metering.UsageStatsRepository
	retentionDays int
	logger        logger.Interface
}

// NewRollupUsageUseCase creates a new RollupUsageUseCase.
func NewRollupUsageUseCase(
	eventRepo metering.UsageEventRepository,
	statsRepo metering.UsageStatsRepository,
	retentionDays int,
	logger logger.Interface,
) *RollupUsageUseCase {
	return &RollupUsageUseCase{
		eventRepo:     eventRepo,
		statsRepo:     statsRepo,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Execute rolls up yesterday and purges expired raw events. It returns the
// number of rollup rows written.
func (uc *RollupUsageUseCase) Execute(ctx context.Context) (int, error) {
	day := biztime.StartOfDay(biztime.NowUTC().AddDate(0, 0, -1))

	stats, err := uc.eventRepo.AggregateDaily(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate daily usage: %w", err)
	}
	if len(stats) > 0 {
		if err := uc.statsRepo.UpsertDaily(ctx, stats); err != nil {
			return 0, fmt.Errorf("failed to upsert daily usage stats: %w", err)
		}
	}

	if uc.retentionDays > 0 {
		cutoff := biztime.NowUTC().AddDate(0, 0, -uc.retentionDays)
		deleted, err := uc.eventRepo.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			// Rollup already landed; purge again on the next run.
			uc.logger.Warnw("failed to purge expired usage events",
				"cutoff", cutoff.Format(time.RFC3339), "error", err)
		} else if deleted > 0 {
			uc.logger.Infow("purged expired usage events",
				"deleted", deleted,
				"cutoff", cutoff.Format(time.RFC3339),
			)
		}
	}

	uc.logger.Infow("daily usage rollup completed",
		"day", day.Format("2006-01-02"),
		"rows", len(stats),
	)
	return len(stats), nil
}
