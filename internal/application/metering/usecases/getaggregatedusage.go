package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meterline/meterline/internal/domain/metering"
	apperrors "github.com/meterline/meterline/internal/shared/errors"
)

// GetAggregatedUsageCommand asks for a customer's usage of one feature over
// a window, collapsed by an aggregation method.
type GetAggregatedUsageCommand struct {
	CustomerID  string                     `json:"customer_id" binding:"required"`
	FeatureSlug string                     `json:"feature_slug" binding:"required"`
	Start       time.Time                  `json:"start" binding:"required"`
	End         time.Time                  `json:"end" binding:"required"`
	Method      metering.AggregationMethod `json:"method"`
}

// GetAggregatedUsageResult is the collapsed usage quantity.
type GetAggregatedUsageResult struct {
	CustomerID  string                     `json:"customer_id"`
	FeatureSlug string                     `json:"feature_slug"`
	Start       time.Time                  `json:"start"`
	End         time.Time                  `json:"end"`
	Method      metering.AggregationMethod `json:"method"`
	Quantity    decimal.Decimal            `json:"quantity"`
	EventCount  int                        `json:"event_count"`
}

// GetAggregatedUsageUseCase aggregates raw usage events for reporting. The
// billing path reads from the analytics store instead; this use case serves
// ad-hoc queries against the durable event table.
type GetAggregatedUsageUseCase struct {
	eventRepo metering.UsageEventRepository
}

// NewGetAggregatedUsageUseCase creates a new GetAggregatedUsageUseCase.
func NewGetAggregatedUsageUseCase(eventRepo metering.UsageEventRepository) *GetAggregatedUsageUseCase {
	return &GetAggregatedUsageUseCase{eventRepo: eventRepo}
}

// Execute collapses the customer's events within [start, end).
func (uc *GetAggregatedUsageUseCase) Execute(ctx context.Context, cmd GetAggregatedUsageCommand) (*GetAggregatedUsageResult, error) {
	if !cmd.End.After(cmd.Start) {
		return nil, apperrors.NewValidationError("end must be after start")
	}
	method := cmd.Method
	if method == "" {
		method = metering.AggregationSum
	}
	if !method.IsValid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid aggregation method: %s", method))
	}

	events, err := uc.eventRepo.ListForWindow(ctx, cmd.CustomerID, cmd.FeatureSlug, cmd.Start, cmd.End)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage events: %w", err)
	}

	values := make([]decimal.Decimal, 0, len(events))
	for _, ev := range events {
		values = append(values, ev.Usage())
	}

	return &GetAggregatedUsageResult{
		CustomerID:  cmd.CustomerID,
		FeatureSlug: cmd.FeatureSlug,
		Start:       cmd.Start,
		End:         cmd.End,
		Method:      method,
		Quantity:    method.Apply(values),
		EventCount:  len(events),
	}, nil
}
