package billing

import (
	"context"
	"time"

	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
)

// SubscriptionRepository persists the subscription aggregate. Update applies
// the aggregate as a single conditional update guarded by the optimistic
// version; a concurrent modification surfaces as ErrStaleSubscription so the
// caller re-reads and re-evaluates on the next tick.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id uint) (*Subscription, error)
	GetBySID(ctx context.Context, sid string) (*Subscription, error)
	// GetActiveByCustomer returns the customer's current non-canceled
	// subscription, ErrSubscriptionNotFound when there is none.
	GetActiveByCustomer(ctx context.Context, customerID string) (*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error

	// FindDue returns subscriptions whose next billing instant has passed,
	// excluding canceled ones, bounded to limit.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)
	// FindPastDueElapsed returns past_due subscriptions whose grace deadline
	// has passed, bounded to limit.
	FindPastDueElapsed(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)
	// FindTrialEnded returns trial subscriptions whose trial has ended,
	// bounded to limit.
	FindTrialEnded(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)

	CountByStatus(ctx context.Context, status vo.SubscriptionStatus) (int64, error)
}

// SubscriptionItemRepository persists subscription items.
type SubscriptionItemRepository interface {
	Create(ctx context.Context, item *SubscriptionItem) error
	GetBySubscriptionID(ctx context.Context, subscriptionID uint) ([]*SubscriptionItem, error)
	Update(ctx context.Context, item *SubscriptionItem) error
}

// PlanVersionRepository persists the plan catalog.
type PlanVersionRepository interface {
	Create(ctx context.Context, plan *PlanVersion) error
	GetByID(ctx context.Context, id uint) (*PlanVersion, error)
	GetBySID(ctx context.Context, sid string) (*PlanVersion, error)
	ListActive(ctx context.Context) ([]*PlanVersion, error)
	Deactivate(ctx context.Context, id uint) error
}

// InvoiceRepository persists invoices. CreateForPeriod enforces at most one
// invoice per subscription and billing period via a unique constraint,
// surfacing ErrInvoiceExists on conflict.
type InvoiceRepository interface {
	CreateForPeriod(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id uint) (*Invoice, error)
	GetBySID(ctx context.Context, sid string) (*Invoice, error)
	GetByProviderRef(ctx context.Context, ref string) (*Invoice, error)
	// GetOpenBySubscription returns the open unpaid invoice for a
	// subscription, ErrInvoiceNotFound when none exists.
	GetOpenBySubscription(ctx context.Context, subscriptionID uint) (*Invoice, error)
	UpdateStatus(ctx context.Context, inv *Invoice) error
}
