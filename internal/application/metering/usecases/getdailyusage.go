package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meterline/meterline/internal/domain/metering"
	apperrors "github.com/meterline/meterline/internal/shared/errors"
)

// maxDailyUsageRangeDays bounds one query so a misbehaving caller cannot
// sweep the whole stats table.
const maxDailyUsageRangeDays = 92

// GetDailyUsageCommand asks for a customer's rolled-up daily usage over a
// date range.
type GetDailyUsageCommand struct {
	CustomerID string    `json:"customer_id" binding:"required"`
	Start      time.Time `json:"start" binding:"required"`
	End        time.Time `json:"end"`
}

// DailyUsagePoint is one day of usage for one feature.
type DailyUsagePoint struct {
	Day         time.Time       `json:"day"`
	FeatureSlug string          `json:"feature_slug"`
	Total       decimal.Decimal `json:"total"`
	EventCount  int64           `json:"event_count"`
}

// GetDailyUsageResult is the per-day, per-feature usage series.
type GetDailyUsageResult struct {
	CustomerID string            `json:"customer_id"`
	Start      time.Time         `json:"start"`
	End        time.Time         `json:"end"`
	Points     []DailyUsagePoint `json:"points"`
}

// GetDailyUsageUseCase serves analytics queries from the daily rollup table
// rather than the raw event table, so dashboard-style range queries stay
// cheap regardless of event volume.
type GetDailyUsageUseCase struct {
	statsRepo metering.UsageStatsRepository
}

// NewGetDailyUsageUseCase creates a new GetDailyUsageUseCase.
func NewGetDailyUsageUseCase(statsRepo metering.UsageStatsRepository) *GetDailyUsageUseCase {
	return &GetDailyUsageUseCase{statsRepo: statsRepo}
}

// Execute returns the customer's daily usage within [start, end).
func (uc *GetDailyUsageUseCase) Execute(ctx context.Context, cmd GetDailyUsageCommand) (*GetDailyUsageResult, error) {
	if cmd.CustomerID == "" {
		return nil, apperrors.NewValidationError("customer_id is required")
	}
	end := cmd.End
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if !end.After(cmd.Start) {
		return nil, apperrors.NewValidationError("end must be after start")
	}
	if end.Sub(cmd.Start) > maxDailyUsageRangeDays*24*time.Hour {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("range cannot exceed %d days", maxDailyUsageRangeDays))
	}

	stats, err := uc.statsRepo.ListDaily(ctx, cmd.CustomerID, cmd.Start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily usage: %w", err)
	}

	points := make([]DailyUsagePoint, 0, len(stats))
	for _, s := range stats {
		points = append(points, DailyUsagePoint{
			Day:         s.Day,
			FeatureSlug: s.FeatureSlug,
			Total:       s.Total,
			EventCount:  s.EventCount,
		})
	}

	return &GetDailyUsageResult{
		CustomerID: cmd.CustomerID,
		Start:      cmd.Start,
		End:        end,
		Points:     points,
	}, nil
}
