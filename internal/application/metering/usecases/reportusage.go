package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meterline/meterline/internal/domain/metering"
	apperrors "github.com/meterline/meterline/internal/shared/errors"
	"github.com/meterline/meterline/internal/shared/id"
	"github.com/meterline/meterline/internal/shared/logger"
)

// idempotencyRetention bounds how long the fast-path filter remembers a key.
// The database unique constraint covers duplicates past this window.
const idempotencyRetention = 24 * time.Hour

// MetaUsageFeatureSlug is the platform's own metered feature: every accepted
// usage event counts one unit against it, so the platform can bill its own
// ingestion the same way tenants bill theirs.
const MetaUsageFeatureSlug = "platform_usage_events"

// ReportUsageCommand records one usage occurrence. IdempotenceKey is
// mandatory: retried deliveries of the same occurrence must carry the same
// key so they collapse into one recorded event.
type ReportUsageCommand struct {
	CustomerID     string            `json:"customer_id" binding:"required"`
	FeatureSlug    string            `json:"feature_slug" binding:"required"`
	Usage          decimal.Decimal   `json:"usage"`
	IdempotenceKey string            `json:"idempotence_key" binding:"required"`
	Timestamp      time.Time         `json:"timestamp"`
	Metadata       map[string]string `json:"metadata"`
}

// ReportUsageResult echoes the recorded event. AlreadyRecorded signals a
// duplicate delivery that was acknowledged without effect.
type ReportUsageResult struct {
	EventSID        string          `json:"event_sid"`
	Usage           decimal.Decimal `json:"usage"`
	Remaining       decimal.Decimal `json:"remaining"`
	Unlimited       bool            `json:"unlimited"`
	AlreadyRecorded bool            `json:"already_recorded"`
}

// ReportUsageUseCase ingests usage events with at-most-once effect. The
// entitlement gate runs before any write so over-quota calls are rejected
// cheaply; dedup is a redis reservation in front of the database unique
// constraint, and the constraint stays authoritative.
type ReportUsageUseCase struct {
	eventRepo    metering.UsageEventRepository
	entitlements *ResolveEntitlementUseCase
	idempotency  IdempotencyStore
	sink         UsageSink
	logger       logger.Interface
}

// NewReportUsageUseCase creates a new ReportUsageUseCase.
func NewReportUsageUseCase(
	eventRepo metering.UsageEventRepository,
	entitlements *ResolveEntitlementUseCase,
	idempotency IdempotencyStore,
	sink UsageSink,
	logger logger.Interface,
) *ReportUsageUseCase {
	return &ReportUsageUseCase{
		eventRepo:    eventRepo,
		entitlements: entitlements,
		idempotency:  idempotency,
		sink:         sink,
		logger:       logger,
	}
}

// Execute records the usage event and returns the remaining entitlement.
func (uc *ReportUsageUseCase) Execute(ctx context.Context, cmd ReportUsageCommand) (*ReportUsageResult, error) {
	if cmd.Usage.IsNegative() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("usage cannot be negative, got %s", cmd.Usage))
	}
	if cmd.IdempotenceKey == "" {
		return nil, apperrors.NewValidationError("idempotence_key is required")
	}

	ent, err := uc.entitlements.Execute(ctx, ResolveEntitlementCommand{
		CustomerID:  cmd.CustomerID,
		FeatureSlug: cmd.FeatureSlug,
	})
	if err != nil {
		return nil, err
	}
	if !ent.Entitled {
		return nil, apperrors.NewForbiddenError(
			fmt.Sprintf("feature %s is not entitled for customer", cmd.FeatureSlug))
	}
	if !ent.Allows(cmd.Usage) {
		return nil, apperrors.NewForbiddenError(
			fmt.Sprintf("usage quota exceeded for feature %s: %s requested, %s remaining",
				cmd.FeatureSlug, cmd.Usage, ent.Remaining))
	}

	reserved, err := uc.idempotency.Reserve(ctx, cmd.IdempotenceKey, idempotencyRetention)
	if err != nil {
		// Fast path down, fall through to the unique constraint.
		uc.logger.Warnw("idempotency fast path unavailable",
			"idempotence_key", cmd.IdempotenceKey, "error", err)
		reserved = true
	}
	if !reserved {
		return uc.duplicateResult(ctx, cmd, ent)
	}

	ev, err := metering.NewUsageEvent(
		id.MustGenerateWithPrefix(id.PrefixUsageEvent, id.DefaultLength),
		cmd.CustomerID,
		cmd.FeatureSlug,
		cmd.Usage,
		cmd.IdempotenceKey,
		cmd.Timestamp,
		cmd.Metadata,
	)
	if err != nil {
		uc.releaseReservation(ctx, cmd.IdempotenceKey)
		return nil, apperrors.NewValidationError(err.Error())
	}

	if err := uc.eventRepo.Insert(ctx, ev); err != nil {
		if errors.Is(err, metering.ErrDuplicateEvent) {
			return uc.duplicateResult(ctx, cmd, ent)
		}
		uc.releaseReservation(ctx, cmd.IdempotenceKey)
		return nil, fmt.Errorf("failed to insert usage event: %w", err)
	}

	uc.publishAsync(ev)
	uc.publishMetaAsync(ev)

	return &ReportUsageResult{
		EventSID:  ev.SID(),
		Usage:     ev.Usage(),
		Remaining: ent.Remaining.Sub(cmd.Usage),
		Unlimited: ent.Unlimited,
	}, nil
}

// duplicateResult acknowledges a retried delivery by returning the original
// event without recording anything.
func (uc *ReportUsageUseCase) duplicateResult(ctx context.Context, cmd ReportUsageCommand, ent *metering.Entitlement) (*ReportUsageResult, error) {
	existing, err := uc.eventRepo.GetByIdempotenceKey(ctx, cmd.IdempotenceKey)
	if err != nil {
		if errors.Is(err, metering.ErrEventNotFound) {
			// Reserved but never persisted: a prior attempt died between
			// reservation and insert. Free the key and ask for a retry.
			uc.releaseReservation(ctx, cmd.IdempotenceKey)
			return nil, apperrors.NewConflictError("usage event delivery in flight, retry")
		}
		return nil, fmt.Errorf("failed to look up duplicate usage event: %w", err)
	}

	uc.logger.Debugw("duplicate usage delivery acknowledged",
		"idempotence_key", cmd.IdempotenceKey,
		"event_sid", existing.SID(),
	)
	return &ReportUsageResult{
		EventSID:        existing.SID(),
		Usage:           existing.Usage(),
		Remaining:       ent.Remaining,
		Unlimited:       ent.Unlimited,
		AlreadyRecorded: true,
	}, nil
}

func (uc *ReportUsageUseCase) releaseReservation(ctx context.Context, key string) {
	if err := uc.idempotency.Release(ctx, key); err != nil {
		uc.logger.Warnw("failed to release idempotency reservation",
			"idempotence_key", key, "error", err)
	}
}

// publishAsync forwards the event to the analytics sink without delaying the
// caller. The database row is the durable record; sink delivery failures are
// only logged.
func (uc *ReportUsageUseCase) publishAsync(ev *metering.UsageEvent) {
	if uc.sink == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := uc.sink.Publish(ctx, ev); err != nil {
			uc.logger.Warnw("failed to publish usage event to analytics sink",
				"event_sid", ev.SID(), "error", err)
		}
	}()
}

// publishMetaAsync meters the ingestion itself: one unit against the
// platform's own feature for every accepted event. The key is a fresh UUID
// because each accepted event is its own occurrence. Best effort; a lost meta
// event is only logged.
func (uc *ReportUsageUseCase) publishMetaAsync(ev *metering.UsageEvent) {
	if uc.sink == nil {
		return
	}
	go func() {
		meta, err := metering.NewUsageEvent(
			id.MustGenerateWithPrefix(id.PrefixUsageEvent, id.DefaultLength),
			ev.CustomerID(),
			MetaUsageFeatureSlug,
			decimal.NewFromInt(1),
			uuid.NewString(),
			time.Time{},
			map[string]string{
				"source_event":   ev.SID(),
				"source_feature": ev.FeatureSlug(),
			},
		)
		if err != nil {
			uc.logger.Warnw("failed to build meta usage event",
				"source_event_sid", ev.SID(), "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := uc.sink.Publish(ctx, meta); err != nil {
			uc.logger.Warnw("failed to publish meta usage event",
				"source_event_sid", ev.SID(), "error", err)
		}
	}()
}
