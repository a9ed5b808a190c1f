package usecases

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
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

// fakeSubscriptionRepo keeps subscriptions in memory. Aggregates are shared by
// pointer, so a mutation followed by Update is visible to the next read the
// same way a committed row would be.
type fakeSubscriptionRepo struct {
	mu      sync.Mutex
	subs    map[uint]*billing.Subscription
	nextID  uint
	updates int
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{subs: make(map[uint]*billing.Subscription), nextID: 1}
}

func (r *fakeSubscriptionRepo) add(t *testing.T, sub *billing.Subscription) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.ID() == 0 {
		require.NoError(t, sub.SetID(r.nextID))
	}
	if sub.ID() >= r.nextID {
		r.nextID = sub.ID() + 1
	}
	r.subs[sub.ID()] = sub
}

func (r *fakeSubscriptionRepo) Create(_ context.Context, sub *billing.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := sub.SetID(r.nextID); err != nil {
		return err
	}
	r.nextID++
	r.subs[sub.ID()] = sub
	return nil
}

func (r *fakeSubscriptionRepo) GetByID(_ context.Context, id uint) (*billing.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, billing.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (r *fakeSubscriptionRepo) GetBySID(_ context.Context, sid string) (*billing.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs {
		if sub.SID() == sid {
			return sub, nil
		}
	}
	return nil, billing.ErrSubscriptionNotFound
}

func (r *fakeSubscriptionRepo) GetActiveByCustomer(_ context.Context, customerID string) (*billing.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.ordered() {
		if sub.CustomerID() == customerID && sub.Status() != vo.StatusCanceled {
			return sub, nil
		}
	}
	return nil, billing.ErrSubscriptionNotFound
}

func (r *fakeSubscriptionRepo) Update(_ context.Context, sub *billing.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[sub.ID()]; !ok {
		return billing.ErrSubscriptionNotFound
	}
	r.subs[sub.ID()] = sub
	r.updates++
	return nil
}

func (r *fakeSubscriptionRepo) FindDue(_ context.Context, now time.Time, limit int) ([]*billing.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*billing.Subscription
	for _, sub := range r.ordered() {
		if sub.Status() == vo.StatusCanceled || sub.NextBillingAt().After(now) {
			continue
		}
		due = append(due, sub)
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (r *fakeSubscriptionRepo) FindPastDueElapsed(_ context.Context, now time.Time, limit int) ([]*billing.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var elapsed []*billing.Subscription
	for _, sub := range r.ordered() {
		if !sub.GraceElapsed(now) {
			continue
		}
		elapsed = append(elapsed, sub)
		if len(elapsed) == limit {
			break
		}
	}
	return elapsed, nil
}

func (r *fakeSubscriptionRepo) FindTrialEnded(_ context.Context, now time.Time, limit int) ([]*billing.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ended []*billing.Subscription
	for _, sub := range r.ordered() {
		if sub.Status() != vo.StatusTrial || sub.TrialEndsAt() == nil || now.Before(*sub.TrialEndsAt()) {
			continue
		}
		ended = append(ended, sub)
		if len(ended) == limit {
			break
		}
	}
	return ended, nil
}

func (r *fakeSubscriptionRepo) CountByStatus(_ context.Context, status vo.SubscriptionStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, sub := range r.subs {
		if sub.Status() == status {
			n++
		}
	}
	return n, nil
}

func (r *fakeSubscriptionRepo) ordered() []*billing.Subscription {
	out := make([]*billing.Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

type fakeItemRepo struct {
	items map[uint][]*billing.SubscriptionItem
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{items: make(map[uint][]*billing.SubscriptionItem)}
}

func (r *fakeItemRepo) add(t *testing.T, subscriptionID uint, featureSlug string, method metering.AggregationMethod) {
	t.Helper()
	item, err := billing.NewSubscriptionItem(subscriptionID, featureSlug, method)
	require.NoError(t, err)
	require.NoError(t, item.SetID(uint(len(r.items[subscriptionID])+1)))
	r.items[subscriptionID] = append(r.items[subscriptionID], item)
}

func (r *fakeItemRepo) Create(_ context.Context, item *billing.SubscriptionItem) error {
	r.items[item.SubscriptionID()] = append(r.items[item.SubscriptionID()], item)
	return nil
}

func (r *fakeItemRepo) GetBySubscriptionID(_ context.Context, subscriptionID uint) ([]*billing.SubscriptionItem, error) {
	return r.items[subscriptionID], nil
}

func (r *fakeItemRepo) Update(_ context.Context, _ *billing.SubscriptionItem) error { return nil }

type fakePlanRepo struct {
	plans map[uint]*billing.PlanVersion
}

func newFakePlanRepo() *fakePlanRepo {
	return &fakePlanRepo{plans: make(map[uint]*billing.PlanVersion)}
}

func (r *fakePlanRepo) add(plan *billing.PlanVersion) { r.plans[plan.ID()] = plan }

func (r *fakePlanRepo) Create(_ context.Context, plan *billing.PlanVersion) error {
	if err := plan.SetID(uint(len(r.plans) + 1)); err != nil {
		return err
	}
	r.plans[plan.ID()] = plan
	return nil
}

func (r *fakePlanRepo) GetByID(_ context.Context, id uint) (*billing.PlanVersion, error) {
	plan, ok := r.plans[id]
	if !ok {
		return nil, billing.ErrPlanVersionNotFound
	}
	return plan, nil
}

func (r *fakePlanRepo) GetBySID(_ context.Context, sid string) (*billing.PlanVersion, error) {
	for _, plan := range r.plans {
		if plan.SID() == sid {
			return plan, nil
		}
	}
	return nil, billing.ErrPlanVersionNotFound
}

func (r *fakePlanRepo) ListActive(_ context.Context) ([]*billing.PlanVersion, error) {
	var active []*billing.PlanVersion
	for _, plan := range r.plans {
		if plan.Active() {
			active = append(active, plan)
		}
	}
	return active, nil
}

func (r *fakePlanRepo) Deactivate(_ context.Context, id uint) error {
	plan, ok := r.plans[id]
	if !ok {
		return billing.ErrPlanVersionNotFound
	}
	plan.Deactivate()
	return nil
}

// fakeInvoiceRepo enforces the per-period uniqueness constraint the real table
// carries, so at-most-once invoice tests exercise the same conflict path.
type fakeInvoiceRepo struct {
	invoices []*billing.Invoice
	nextID   uint
}

func newFakeInvoiceRepo() *fakeInvoiceRepo { return &fakeInvoiceRepo{nextID: 1} }

func (r *fakeInvoiceRepo) CreateForPeriod(_ context.Context, inv *billing.Invoice) error {
	for _, existing := range r.invoices {
		if existing.SubscriptionID() == inv.SubscriptionID() && existing.PeriodStart().Equal(inv.PeriodStart()) {
			return billing.ErrInvoiceExists
		}
	}
	if err := inv.SetID(r.nextID); err != nil {
		return err
	}
	r.nextID++
	r.invoices = append(r.invoices, inv)
	return nil
}

func (r *fakeInvoiceRepo) GetByID(_ context.Context, id uint) (*billing.Invoice, error) {
	for _, inv := range r.invoices {
		if inv.ID() == id {
			return inv, nil
		}
	}
	return nil, billing.ErrInvoiceNotFound
}

func (r *fakeInvoiceRepo) GetBySID(_ context.Context, sid string) (*billing.Invoice, error) {
	for _, inv := range r.invoices {
		if inv.SID() == sid {
			return inv, nil
		}
	}
	return nil, billing.ErrInvoiceNotFound
}

func (r *fakeInvoiceRepo) GetByProviderRef(_ context.Context, ref string) (*billing.Invoice, error) {
	for _, inv := range r.invoices {
		if inv.ProviderRef() != nil && *inv.ProviderRef() == ref {
			return inv, nil
		}
	}
	return nil, billing.ErrInvoiceNotFound
}

func (r *fakeInvoiceRepo) GetOpenBySubscription(_ context.Context, subscriptionID uint) (*billing.Invoice, error) {
	for _, inv := range r.invoices {
		if inv.SubscriptionID() == subscriptionID && inv.IsOpen() {
			return inv, nil
		}
	}
	return nil, billing.ErrInvoiceNotFound
}

func (r *fakeInvoiceRepo) UpdateStatus(_ context.Context, _ *billing.Invoice) error { return nil }

type fakeProvider struct {
	methods       map[string][]PaymentMethod
	createCalls   int
	itemCalls     int
	finalizeCalls int
	createErr     error
	finalizeErr   error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{methods: make(map[string][]PaymentMethod)}
}

func (p *fakeProvider) CreateInvoice(_ context.Context, _ string, _ string, _ bool) (string, error) {
	if p.createErr != nil {
		return "", p.createErr
	}
	p.createCalls++
	return fmt.Sprintf("pinv_test_%d", p.createCalls), nil
}

func (p *fakeProvider) AddInvoiceItem(_ context.Context, _ string, _ ProviderInvoiceItem) error {
	p.itemCalls++
	return nil
}

func (p *fakeProvider) FinalizeInvoice(_ context.Context, _ string) error {
	if p.finalizeErr != nil {
		return p.finalizeErr
	}
	p.finalizeCalls++
	return nil
}

func (p *fakeProvider) ListPaymentMethods(_ context.Context, customerID string) ([]PaymentMethod, error) {
	return p.methods[customerID], nil
}

type fakeUsage struct {
	quantities map[string]decimal.Decimal
	err        error
}

func newFakeUsage() *fakeUsage {
	return &fakeUsage{quantities: make(map[string]decimal.Decimal)}
}

func (u *fakeUsage) GetAggregatedUsage(_ context.Context, _, featureSlug string, _, _ time.Time, _ metering.AggregationMethod) (decimal.Decimal, error) {
	if u.err != nil {
		return decimal.Zero, u.err
	}
	return u.quantities[featureSlug], nil
}

type fakeInvalidator struct {
	customers []string
}

func (f *fakeInvalidator) InvalidateCustomer(_ context.Context, customerID string) error {
	f.customers = append(f.customers, customerID)
	return nil
}
