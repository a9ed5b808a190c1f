package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/meterline/meterline/internal/domain/billing"
	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
	"github.com/meterline/meterline/internal/shared/logger"
)

// Webhook event types dispatched by the payment provider.
const (
	WebhookInvoicePaid          = "invoice.paid"
	WebhookInvoicePaymentFailed = "invoice.payment_failed"
)

// HandlePaymentWebhookCommand is a verified, decoded provider event. The
// transport layer verifies the signature before building the command.
type HandlePaymentWebhookCommand struct {
	EventType  string
	InvoiceRef string // provider invoice reference
}

// HandlePaymentWebhookUseCase settles invoices from provider events.
// invoice.paid marks the local invoice paid and renews the subscription;
// invoice.payment_failed records the payment_failed reason so the
// reconciliation scheduler picks the subscription up after grace.
type HandlePaymentWebhookUseCase struct {
	subscriptionRepo billing.SubscriptionRepository
	planRepo         billing.PlanVersionRepository
	invoiceRepo      billing.InvoiceRepository
	entitlements     EntitlementInvalidator
	logger           logger.Interface
}

// NewHandlePaymentWebhookUseCase creates a new HandlePaymentWebhookUseCase.
func NewHandlePaymentWebhookUseCase(
	subscriptionRepo billing.SubscriptionRepository,
	planRepo billing.PlanVersionRepository,
	invoiceRepo billing.InvoiceRepository,
	entitlements EntitlementInvalidator,
	logger logger.Interface,
) *HandlePaymentWebhookUseCase {
	return &HandlePaymentWebhookUseCase{
		subscriptionRepo: subscriptionRepo,
		planRepo:         planRepo,
		invoiceRepo:      invoiceRepo,
		entitlements:     entitlements,
		logger:           logger,
	}
}

// Execute dispatches one verified provider event.
func (uc *HandlePaymentWebhookUseCase) Execute(ctx context.Context, cmd HandlePaymentWebhookCommand) error {
	inv, err := uc.invoiceRepo.GetByProviderRef(ctx, cmd.InvoiceRef)
	if err != nil {
		return fmt.Errorf("failed to find invoice for provider ref: %w", err)
	}

	switch cmd.EventType {
	case WebhookInvoicePaid:
		return uc.handlePaid(ctx, inv)
	case WebhookInvoicePaymentFailed:
		return uc.handlePaymentFailed(ctx, inv)
	default:
		uc.logger.Debugw("ignoring unhandled webhook event",
			"event_type", cmd.EventType,
			"invoice_ref", cmd.InvoiceRef,
		)
		return nil
	}
}

func (uc *HandlePaymentWebhookUseCase) handlePaid(ctx context.Context, inv *billing.Invoice) error {
	if err := inv.MarkPaid(); err != nil {
		return fmt.Errorf("failed to mark invoice paid: %w", err)
	}
	if err := uc.invoiceRepo.UpdateStatus(ctx, inv); err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}

	sub, err := uc.subscriptionRepo.GetByID(ctx, inv.SubscriptionID())
	if err != nil {
		return fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub.Status() != vo.StatusPastDue {
		// Automatic collection already advanced the cycle at billing time.
		uc.logger.Debugw("invoice paid for already-current subscription",
			"subscription_sid", sub.SID(),
			"invoice_sid", inv.SID(),
		)
		return nil
	}

	plan, err := uc.planRepo.GetByID(ctx, sub.PlanVersionID())
	if err != nil {
		return fmt.Errorf("failed to get plan version: %w", err)
	}
	cycle, err := billing.NextCycle(sub.BillingCycleEndAt(), plan.Period())
	if err != nil {
		return fmt.Errorf("failed to compute next cycle: %w", err)
	}
	if err := sub.MarkRenewed(cycle, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to renew subscription: %w", err)
	}
	if err := uc.subscriptionRepo.Update(ctx, sub); err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	if uc.entitlements != nil {
		if err := uc.entitlements.InvalidateCustomer(ctx, sub.CustomerID()); err != nil {
			uc.logger.Warnw("failed to invalidate entitlement cache",
				"customer_id", sub.CustomerID(), "error", err)
		}
	}

	uc.logger.Infow("subscription renewed from paid invoice",
		"subscription_sid", sub.SID(),
		"invoice_sid", inv.SID(),
	)
	return nil
}

func (uc *HandlePaymentWebhookUseCase) handlePaymentFailed(ctx context.Context, inv *billing.Invoice) error {
	sub, err := uc.subscriptionRepo.GetByID(ctx, inv.SubscriptionID())
	if err != nil {
		return fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub.Status() == vo.StatusCanceled {
		return nil
	}

	if err := sub.MarkPastDue(vo.ReasonPaymentFailed, sub.GracePeriodEndsAt()); err != nil {
		return fmt.Errorf("failed to mark past due: %w", err)
	}
	if err := uc.subscriptionRepo.Update(ctx, sub); err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	uc.logger.Warnw("payment failed, subscription marked past due",
		"subscription_sid", sub.SID(),
		"invoice_sid", inv.SID(),
		"past_due_at", sub.PastDueAt(),
	)
	return nil
}
