package usecases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meterline/meterline/internal/domain/metering"
	apperrors "github.com/meterline/meterline/internal/shared/errors"
)

func reportCmd(usage int64) ReportUsageCommand {
	return ReportUsageCommand{
		CustomerID:     "cus_1",
		FeatureSlug:    "api_calls",
		Usage:          decimal.NewFromInt(usage),
		IdempotenceKey: "req-001",
	}
}

func TestReportUsage_RecordsEventAndPublishes(t *testing.T) {
	f := newMeteringFixture(t)
	f.aggregator.used["api_calls"] = decimal.NewFromInt(100)

	result, err := f.report.Execute(context.Background(), reportCmd(50))
	require.NoError(t, err)
	assert.NotEmpty(t, result.EventSID)
	assert.False(t, result.AlreadyRecorded)
	assert.False(t, result.Unlimited)
	// 1000 included, 100 used, 50 just reported.
	assert.True(t, result.Remaining.Equal(decimal.NewFromInt(850)), "remaining %s", result.Remaining)

	stored, err := f.events.GetByIdempotenceKey(context.Background(), "req-001")
	require.NoError(t, err)
	assert.True(t, stored.Usage().Equal(decimal.NewFromInt(50)))

	// The analytics publish happens off the request path: the event itself
	// plus one platform self-metering event.
	require.Eventually(t, func() bool {
		return f.sink.publishedCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.Len(t, f.sink.publishedFor("api_calls"), 1)
}

func TestReportUsage_MetersItsOwnIngestion(t *testing.T) {
	f := newMeteringFixture(t)
	f.aggregator.used["api_calls"] = decimal.NewFromInt(100)

	result, err := f.report.Execute(context.Background(), reportCmd(50))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(f.sink.publishedFor(MetaUsageFeatureSlug)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	meta := f.sink.publishedFor(MetaUsageFeatureSlug)[0]
	assert.Equal(t, "cus_1", meta.CustomerID())
	assert.True(t, meta.Usage().Equal(decimal.NewFromInt(1)))
	assert.Equal(t, result.EventSID, meta.Metadata()["source_event"])
	assert.Equal(t, "api_calls", meta.Metadata()["source_feature"])
	assert.NotEqual(t, "req-001", meta.IdempotenceKey(),
		"the meta event is its own occurrence, never the caller's key")
	assert.NotEmpty(t, meta.IdempotenceKey())

	// The meta event rides the analytics stream only; it is not a tenant
	// usage row.
	assert.Equal(t, 1, f.events.inserts)
}

func TestReportUsage_RejectsNegativeUsage(t *testing.T) {
	f := newMeteringFixture(t)

	cmd := reportCmd(0)
	cmd.Usage = decimal.NewFromInt(-1)
	_, err := f.report.Execute(context.Background(), cmd)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
	assert.Equal(t, 0, f.aggregator.calls, "rejected before entitlement resolution")
	assert.Equal(t, 0, f.events.inserts)
}

func TestReportUsage_RequiresIdempotenceKey(t *testing.T) {
	f := newMeteringFixture(t)

	cmd := reportCmd(5)
	cmd.IdempotenceKey = ""
	_, err := f.report.Execute(context.Background(), cmd)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
	assert.Equal(t, 0, f.events.inserts)
}

func TestReportUsage_UnknownFeatureForbidden(t *testing.T) {
	f := newMeteringFixture(t)

	cmd := reportCmd(5)
	cmd.FeatureSlug = "video_minutes"
	_, err := f.report.Execute(context.Background(), cmd)
	require.Error(t, err)
	assert.True(t, apperrors.IsForbiddenError(err))
	assert.Equal(t, 0, f.events.inserts)
}

func TestReportUsage_OverQuotaForbidden(t *testing.T) {
	f := newMeteringFixture(t)
	f.aggregator.used["api_calls"] = decimal.NewFromInt(990)

	_, err := f.report.Execute(context.Background(), reportCmd(20))
	require.Error(t, err)
	assert.True(t, apperrors.IsForbiddenError(err))
	assert.Equal(t, 0, f.events.inserts, "nothing is written for a rejected call")
}

func TestReportUsage_UnlimitedFeatureNeverGated(t *testing.T) {
	f := newMeteringFixture(t)
	f.aggregator.used["compute_hours"] = decimal.NewFromInt(1_000_000)

	cmd := reportCmd(500)
	cmd.FeatureSlug = "compute_hours"
	result, err := f.report.Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, result.Unlimited)
	assert.Equal(t, 1, f.events.inserts)
}

func TestReportUsage_DuplicateDeliveryCountedOnce(t *testing.T) {
	f := newMeteringFixture(t)
	f.aggregator.used["api_calls"] = decimal.NewFromInt(100)

	first, err := f.report.Execute(context.Background(), reportCmd(50))
	require.NoError(t, err)

	// Same idempotence key again: acknowledged, not re-recorded.
	second, err := f.report.Execute(context.Background(), reportCmd(50))
	require.NoError(t, err)
	assert.True(t, second.AlreadyRecorded)
	assert.Equal(t, first.EventSID, second.EventSID)
	assert.Equal(t, 1, f.events.inserts)
}

func TestReportUsage_DatabaseConstraintBacksUpFastPath(t *testing.T) {
	f := newMeteringFixture(t)
	f.aggregator.used["api_calls"] = decimal.NewFromInt(100)

	// The event row exists but the redis reservation was lost, for example
	// after an eviction. The unique constraint still dedups.
	prior, err := metering.NewUsageEvent(
		"evt_prior1", "cus_1", "api_calls",
		decimal.NewFromInt(50), "req-001", time.Now().UTC(), nil,
	)
	require.NoError(t, err)
	require.NoError(t, f.events.Insert(context.Background(), prior))

	result, err := f.report.Execute(context.Background(), reportCmd(50))
	require.NoError(t, err)
	assert.True(t, result.AlreadyRecorded)
	assert.Equal(t, "evt_prior1", result.EventSID)
	assert.Equal(t, 1, f.events.inserts)
}

func TestReportUsage_ReservedButMissingAsksForRetry(t *testing.T) {
	f := newMeteringFixture(t)
	f.aggregator.used["api_calls"] = decimal.NewFromInt(100)

	// A prior attempt reserved the key and died before the insert.
	f.idem.reserved["req-001"] = true

	_, err := f.report.Execute(context.Background(), reportCmd(50))
	require.Error(t, err)
	assert.True(t, apperrors.IsConflictError(err))
	assert.Equal(t, 1, f.idem.releases, "reservation is freed so the retry can land")
	assert.Equal(t, 0, f.events.inserts)
}

func TestReportUsage_IdempotencyStoreOutageFallsThrough(t *testing.T) {
	f := newMeteringFixture(t)
	f.aggregator.used["api_calls"] = decimal.NewFromInt(100)
	f.idem.reserveErr = errors.New("redis timeout")

	result, err := f.report.Execute(context.Background(), reportCmd(50))
	require.NoError(t, err)
	assert.False(t, result.AlreadyRecorded)
	assert.Equal(t, 1, f.events.inserts)
}

func TestReportUsage_FailedInsertReleasesReservation(t *testing.T) {
	f := newMeteringFixture(t)
	f.aggregator.used["api_calls"] = decimal.NewFromInt(100)
	f.events.insertErr = errors.New("connection reset")

	_, err := f.report.Execute(context.Background(), reportCmd(50))
	require.Error(t, err)
	assert.Equal(t, 1, f.idem.releases)
}
