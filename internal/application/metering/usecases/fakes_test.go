package usecases

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meterline/meterline/internal/domain/billing"
	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
	"github.com/meterline/meterline/internal/domain/metering"
	"github.com/meterline/meterline/internal/shared/logger"
)

func testLogger() logger.Interface {
	return logger.NewLoggerWithSlog(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fakeSubscriptionSource serves one subscription per customer; only the
// lookup paths entitlement resolution touches are meaningful.
type fakeSubscriptionSource struct {
	byCustomer map[string]*billing.Subscription
}

func (r *fakeSubscriptionSource) Create(_ context.Context, _ *billing.Subscription) error { return nil }

func (r *fakeSubscriptionSource) GetByID(_ context.Context, _ uint) (*billing.Subscription, error) {
	return nil, billing.ErrSubscriptionNotFound
}

func (r *fakeSubscriptionSource) GetBySID(_ context.Context, _ string) (*billing.Subscription, error) {
	return nil, billing.ErrSubscriptionNotFound
}

func (r *fakeSubscriptionSource) GetActiveByCustomer(_ context.Context, customerID string) (*billing.Subscription, error) {
	sub, ok := r.byCustomer[customerID]
	if !ok {
		return nil, billing.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (r *fakeSubscriptionSource) Update(_ context.Context, _ *billing.Subscription) error { return nil }

func (r *fakeSubscriptionSource) FindDue(_ context.Context, _ time.Time, _ int) ([]*billing.Subscription, error) {
	return nil, nil
}

func (r *fakeSubscriptionSource) FindPastDueElapsed(_ context.Context, _ time.Time, _ int) ([]*billing.Subscription, error) {
	return nil, nil
}

func (r *fakeSubscriptionSource) FindTrialEnded(_ context.Context, _ time.Time, _ int) ([]*billing.Subscription, error) {
	return nil, nil
}

func (r *fakeSubscriptionSource) CountByStatus(_ context.Context, _ vo.SubscriptionStatus) (int64, error) {
	return 0, nil
}

type fakeItemSource struct {
	items map[uint][]*billing.SubscriptionItem
}

func (r *fakeItemSource) Create(_ context.Context, _ *billing.SubscriptionItem) error { return nil }

func (r *fakeItemSource) GetBySubscriptionID(_ context.Context, subscriptionID uint) ([]*billing.SubscriptionItem, error) {
	return r.items[subscriptionID], nil
}

func (r *fakeItemSource) Update(_ context.Context, _ *billing.SubscriptionItem) error { return nil }

type fakePlanSource struct {
	plans map[uint]*billing.PlanVersion
}

func (r *fakePlanSource) Create(_ context.Context, _ *billing.PlanVersion) error { return nil }

func (r *fakePlanSource) GetByID(_ context.Context, id uint) (*billing.PlanVersion, error) {
	plan, ok := r.plans[id]
	if !ok {
		return nil, billing.ErrPlanVersionNotFound
	}
	return plan, nil
}

func (r *fakePlanSource) GetBySID(_ context.Context, _ string) (*billing.PlanVersion, error) {
	return nil, billing.ErrPlanVersionNotFound
}

func (r *fakePlanSource) ListActive(_ context.Context) ([]*billing.PlanVersion, error) {
	return nil, nil
}

func (r *fakePlanSource) Deactivate(_ context.Context, _ uint) error { return nil }

type fakeAggregator struct {
	used  map[string]decimal.Decimal
	calls int
}

func (a *fakeAggregator) GetAggregatedUsage(_ context.Context, _, featureSlug string, _, _ time.Time, _ metering.AggregationMethod) (decimal.Decimal, error) {
	a.calls++
	return a.used[featureSlug], nil
}

type fakeEntCache struct {
	entries       map[string]*metering.Entitlement
	sets          int
	invalidations []string
}

func newFakeEntCache() *fakeEntCache {
	return &fakeEntCache{entries: make(map[string]*metering.Entitlement)}
}

func (c *fakeEntCache) Get(_ context.Context, customerID, featureSlug string) (*metering.Entitlement, error) {
	return c.entries[customerID+"/"+featureSlug], nil
}

func (c *fakeEntCache) Set(_ context.Context, ent *metering.Entitlement) error {
	c.entries[ent.CustomerID+"/"+ent.FeatureSlug] = ent
	c.sets++
	return nil
}

func (c *fakeEntCache) InvalidateCustomer(_ context.Context, customerID string) error {
	c.invalidations = append(c.invalidations, customerID)
	for k := range c.entries {
		delete(c.entries, k)
	}
	return nil
}

// fakeEventStore enforces idempotence-key uniqueness like the real table.
type fakeEventStore struct {
	byKey     map[string]*metering.UsageEvent
	insertErr error
	inserts   int
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{byKey: make(map[string]*metering.UsageEvent)}
}

func (s *fakeEventStore) Insert(_ context.Context, ev *metering.UsageEvent) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	if _, exists := s.byKey[ev.IdempotenceKey()]; exists {
		return metering.ErrDuplicateEvent
	}
	s.byKey[ev.IdempotenceKey()] = ev
	s.inserts++
	return nil
}

func (s *fakeEventStore) GetByIdempotenceKey(_ context.Context, key string) (*metering.UsageEvent, error) {
	ev, ok := s.byKey[key]
	if !ok {
		return nil, metering.ErrEventNotFound
	}
	return ev, nil
}

func (s *fakeEventStore) ListForWindow(_ context.Context, _, _ string, _, _ time.Time) ([]*metering.UsageEvent, error) {
	return nil, nil
}

func (s *fakeEventStore) DeleteOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (s *fakeEventStore) AggregateDaily(_ context.Context, _ time.Time) ([]metering.DailyStat, error) {
	return nil, nil
}

type fakeIdemStore struct {
	reserved   map[string]bool
	reserveErr error
	releases   int
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{reserved: make(map[string]bool)}
}

func (s *fakeIdemStore) Reserve(_ context.Context, key string, _ time.Duration) (bool, error) {
	if s.reserveErr != nil {
		return false, s.reserveErr
	}
	if s.reserved[key] {
		return false, nil
	}
	s.reserved[key] = true
	return true, nil
}

func (s *fakeIdemStore) Release(_ context.Context, key string) error {
	delete(s.reserved, key)
	s.releases++
	return nil
}

type fakeSink struct {
	mu        sync.Mutex
	published []*metering.UsageEvent
}

func (s *fakeSink) Publish(_ context.Context, ev *metering.UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, ev)
	return nil
}

func (s *fakeSink) publishedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

func (s *fakeSink) publishedFor(featureSlug string) []*metering.UsageEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*metering.UsageEvent
	for _, ev := range s.published {
		if ev.FeatureSlug() == featureSlug {
			matched = append(matched, ev)
		}
	}
	return matched
}

// meteringFixture wires usage reporting over one active subscription for
// cus_1 with two plan features: api_calls has a hard quota of 1000 included
// units, compute_hours is metered overage with no hard cap.
type meteringFixture struct {
	subs       *fakeSubscriptionSource
	items      *fakeItemSource
	plans      *fakePlanSource
	aggregator *fakeAggregator
	entCache   *fakeEntCache
	events     *fakeEventStore
	idem       *fakeIdemStore
	sink       *fakeSink
	resolve    *ResolveEntitlementUseCase
	report     *ReportUsageUseCase
}

func newMeteringFixture(t *testing.T) *meteringFixture {
	t.Helper()
	plan, err := billing.ReconstructPlanVersion(billing.PlanVersionReconstructParams{
		ID:               1,
		SID:              "plan_metered1",
		PlanName:         "metered",
		VersionNumber:    1,
		Currency:         "USD",
		Period:           vo.MustBillingPeriod(vo.PeriodMonth, 1, vo.AnchorCreation, 0),
		WhenToBill:       vo.PayInArrear,
		CollectionMethod: vo.SendInvoice,
		GracePeriodDays:  3,
		Features: []billing.PlanFeature{
			{
				FeatureSlug:   "api_calls",
				IncludedUnits: decimal.NewFromInt(1000),
				Aggregation:   metering.AggregationSum,
			},
			{
				FeatureSlug:     "compute_hours",
				UnitAmountCents: 50,
				Aggregation:     metering.AggregationSum,
			},
		},
		Active: true,
	})
	require.NoError(t, err)

	start := time.Now().UTC().AddDate(0, 0, -10)
	sub, err := billing.NewSubscription(
		"sub_metered1", "cus_1", 1,
		start, start.AddDate(0, 1, 0),
		vo.PayInArrear, vo.SendInvoice,
		3, nil,
	)
	require.NoError(t, err)
	require.NoError(t, sub.SetID(1))

	f := &meteringFixture{
		subs:       &fakeSubscriptionSource{byCustomer: map[string]*billing.Subscription{"cus_1": sub}},
		items:      &fakeItemSource{items: make(map[uint][]*billing.SubscriptionItem)},
		plans:      &fakePlanSource{plans: map[uint]*billing.PlanVersion{1: plan}},
		aggregator: &fakeAggregator{used: make(map[string]decimal.Decimal)},
		entCache:   newFakeEntCache(),
		events:     newFakeEventStore(),
		idem:       newFakeIdemStore(),
		sink:       &fakeSink{},
	}
	f.resolve = NewResolveEntitlementUseCase(
		f.subs, f.items, f.plans, f.aggregator, f.entCache, testLogger(),
	)
	f.report = NewReportUsageUseCase(
		f.events, f.resolve, f.idem, f.sink, testLogger(),
	)
	return f
}
