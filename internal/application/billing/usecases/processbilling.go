package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meterline/meterline/internal/domain/billing"
	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
	apperrors "github.com/meterline/meterline/internal/shared/errors"
	"github.com/meterline/meterline/internal/shared/id"
	"github.com/meterline/meterline/internal/shared/logger"
)

// ProcessBillingCommand identifies one subscription billing run.
type ProcessBillingCommand struct {
	SubscriptionID uint
	CurrentDate    time.Time
}

// ProcessBillingResult reports what the run did.
type ProcessBillingResult struct {
	Billed     bool
	Skipped    bool
	SkipReason string
	InvoiceSID string
}

// ProcessBillingUseCase is the billing task for one subscription. It is safe
// to re-enter: a subscription still in trial, not yet due, or already billed
// for its current cycle is a no-op, and the per-period invoice uniqueness
// constraint prevents duplicate invoices. Provider side effects run before
// the local state transition so a provider failure leaves the subscription
// in its prior state for the next scheduler tick.
type ProcessBillingUseCase struct {
	subscriptionRepo billing.SubscriptionRepository
	itemRepo         billing.SubscriptionItemRepository
	planRepo         billing.PlanVersionRepository
	invoiceRepo      billing.InvoiceRepository
	provider         PaymentProvider
	usage            UsageReader
	entitlements     EntitlementInvalidator
	logger           logger.Interface
}

// NewProcessBillingUseCase creates a new ProcessBillingUseCase.
func NewProcessBillingUseCase(
	subscriptionRepo billing.SubscriptionRepository,
	itemRepo billing.SubscriptionItemRepository,
	planRepo billing.PlanVersionRepository,
	invoiceRepo billing.InvoiceRepository,
	provider PaymentProvider,
	usage UsageReader,
	entitlements EntitlementInvalidator,
	logger logger.Interface,
) *ProcessBillingUseCase {
	return &ProcessBillingUseCase{
		subscriptionRepo: subscriptionRepo,
		itemRepo:         itemRepo,
		planRepo:         planRepo,
		invoiceRepo:      invoiceRepo,
		provider:         provider,
		usage:            usage,
		entitlements:     entitlements,
		logger:           logger,
	}
}

func skip(reason string) *ProcessBillingResult {
	return &ProcessBillingResult{Skipped: true, SkipReason: reason}
}

// Execute runs the billing task for one subscription.
func (uc *ProcessBillingUseCase) Execute(ctx context.Context, cmd ProcessBillingCommand) (*ProcessBillingResult, error) {
	sub, err := uc.subscriptionRepo.GetByID(ctx, cmd.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	now := cmd.CurrentDate
	if now.IsZero() {
		now = time.Now().UTC()
	}

	switch {
	case sub.Status() == vo.StatusTrial:
		return skip("in_trial"), nil
	case sub.Status() == vo.StatusCanceled:
		return skip("canceled"), nil
	case sub.NextBillingAt().After(now):
		return skip("not_due"), nil
	case sub.IsPaidForCycle():
		return skip("already_billed"), nil
	}

	plan, err := uc.planRepo.GetByID(ctx, sub.PlanVersionID())
	if err != nil {
		return nil, fmt.Errorf("failed to get plan version: %w", err)
	}

	// A plan that charges automatically cannot bill without a stored payment
	// method; park the subscription in past_due instead of generating an
	// invoice nobody can pay.
	if plan.RequiresPaymentMethod() && sub.DefaultPaymentMethodID() == nil {
		hasMethod, err := uc.customerHasPaymentMethod(ctx, sub.CustomerID())
		if err != nil {
			return nil, fmt.Errorf("failed to check payment methods: %w", err)
		}
		if !hasMethod {
			if err := sub.MarkPastDue(vo.ReasonPendingPaymentMethod, sub.GracePeriodEndsAt()); err != nil {
				return nil, fmt.Errorf("failed to mark past due: %w", err)
			}
			if err := uc.subscriptionRepo.Update(ctx, sub); err != nil {
				return nil, fmt.Errorf("failed to update subscription: %w", err)
			}
			uc.logger.Infow("subscription parked pending payment method",
				"subscription_sid", sub.SID(),
				"past_due_at", sub.PastDueAt(),
			)
			return skip("pending_payment_method"), nil
		}
	}

	cycle, err := billing.NextCycle(sub.BillingCycleEndAt(), plan.Period())
	if err != nil {
		return nil, fmt.Errorf("failed to compute next cycle: %w", err)
	}

	autoCharge := sub.CollectionMethod() == vo.ChargeAutomatically
	inv, err := uc.generateInvoice(ctx, sub, plan, cycle, autoCharge)
	if err != nil {
		if errors.Is(err, billing.ErrInvoiceExists) {
			// Re-entry after a partial run: the invoice is already out,
			// settlement is owned by the webhook path.
			uc.logger.Warnw("invoice already exists for period, skipping",
				"subscription_sid", sub.SID(),
			)
			return skip("invoice_exists"), nil
		}
		return nil, err
	}

	if autoCharge {
		// Collection is in flight against the stored payment method; the
		// subscription is considered billed for the new cycle.
		if err := sub.MarkRenewed(cycle, now); err != nil {
			return nil, fmt.Errorf("failed to mark renewed: %w", err)
		}
	} else {
		// send_invoice: the cycle does not advance until the invoice is
		// paid. The paid-invoice webhook performs the renewal.
		if err := sub.MarkPastDue(vo.ReasonPaymentPending, sub.GracePeriodEndsAt()); err != nil {
			return nil, fmt.Errorf("failed to mark past due: %w", err)
		}
	}

	if err := uc.subscriptionRepo.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}

	if uc.entitlements != nil {
		if err := uc.entitlements.InvalidateCustomer(ctx, sub.CustomerID()); err != nil {
			uc.logger.Warnw("failed to invalidate entitlement cache",
				"customer_id", sub.CustomerID(), "error", err)
		}
	}

	uc.logger.Infow("subscription billed",
		"subscription_sid", sub.SID(),
		"invoice_sid", inv.SID(),
		"cycle_start", cycle.Start,
		"cycle_end", cycle.End,
		"prorated", cycle.IsProrated(),
		"auto_charge", autoCharge,
	)
	return &ProcessBillingResult{Billed: true, InvoiceSID: inv.SID()}, nil
}

func (uc *ProcessBillingUseCase) customerHasPaymentMethod(ctx context.Context, customerID string) (bool, error) {
	methods, err := uc.provider.ListPaymentMethods(ctx, customerID)
	if err != nil {
		return false, err
	}
	return len(methods) > 0, nil
}

// generateInvoice builds the local invoice line by line from metered usage
// for the closing window, mirrors it at the provider, and persists it. A
// negative aggregate is a data corruption signal and fails the run for this
// subscription without creating a corrupt invoice line.
func (uc *ProcessBillingUseCase) generateInvoice(
	ctx context.Context,
	sub *billing.Subscription,
	plan *billing.PlanVersion,
	cycle billing.Cycle,
	autoCharge bool,
) (*billing.Invoice, error) {
	// At-most-once guard: never push a second provider invoice for a period
	// that already has an open one.
	if existing, err := uc.invoiceRepo.GetOpenBySubscription(ctx, sub.ID()); err == nil && existing != nil {
		return nil, billing.ErrInvoiceExists
	} else if err != nil && !errors.Is(err, billing.ErrInvoiceNotFound) {
		return nil, fmt.Errorf("failed to check open invoices: %w", err)
	}

	items, err := uc.itemRepo.GetBySubscriptionID(ctx, sub.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription items: %w", err)
	}

	windowStart := sub.BillingCycleStartAt()
	windowEnd := sub.BillingCycleEndAt()

	inv, err := billing.NewInvoice(
		id.MustGenerateWithPrefix(id.PrefixInvoice, id.DefaultLength),
		sub.ID(), sub.CustomerID(), plan.Currency(), windowStart, windowEnd,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	for _, item := range items {
		quantity, err := uc.usage.GetAggregatedUsage(
			ctx, sub.CustomerID(), item.FeatureSlug(), windowStart, windowEnd, item.Aggregation())
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate usage for %s: %w", item.FeatureSlug(), err)
		}
		if quantity.IsNegative() {
			// Not retried: retrying cannot fix corrupted aggregates.
			return nil, apperrors.NewValidationError(
				"negative aggregated usage",
				fmt.Sprintf("feature %s, customer %s, quantity %s", item.FeatureSlug(), sub.CustomerID(), quantity))
		}

		amount, err := plan.PriceFor(item.FeatureSlug(), quantity, cycle.ProrationFactor)
		if err != nil {
			return nil, fmt.Errorf("failed to price feature %s: %w", item.FeatureSlug(), err)
		}

		feature, _ := plan.Feature(item.FeatureSlug())
		description := item.FeatureSlug()
		if cycle.IsProrated() {
			description += " (Prorated)"
		}
		if err := inv.AddLine(billing.InvoiceLine{
			FeatureSlug: item.FeatureSlug(),
			Description: description,
			Quantity:    quantity,
			UnitAmount:  feature.UnitAmountCents,
			Amount:      amount,
			Currency:    plan.Currency(),
			Prorated:    cycle.IsProrated(),
		}); err != nil {
			return nil, fmt.Errorf("failed to add invoice line: %w", err)
		}
	}

	// Provider side effects happen before any local state is persisted.
	providerRef, err := uc.provider.CreateInvoice(ctx, sub.CustomerID(), plan.Currency(), autoCharge)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider invoice: %w", err)
	}
	for _, line := range inv.Lines() {
		if err := uc.provider.AddInvoiceItem(ctx, providerRef, ProviderInvoiceItem{
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitAmount:  line.UnitAmount,
			Amount:      line.Amount,
			Currency:    line.Currency,
		}); err != nil {
			return nil, fmt.Errorf("failed to add provider invoice item: %w", err)
		}
	}
	if err := uc.provider.FinalizeInvoice(ctx, providerRef); err != nil {
		return nil, fmt.Errorf("failed to finalize provider invoice: %w", err)
	}

	if err := inv.AttachProviderRef(providerRef); err != nil {
		return nil, fmt.Errorf("failed to attach provider reference: %w", err)
	}
	if err := inv.Finalize(); err != nil {
		return nil, fmt.Errorf("failed to finalize invoice: %w", err)
	}
	if err := uc.invoiceRepo.CreateForPeriod(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}
