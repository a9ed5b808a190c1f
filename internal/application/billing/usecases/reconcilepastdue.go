package usecases

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/meterline/meterline/internal/domain/billing"
	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
	"github.com/meterline/meterline/internal/shared/logger"
)

// DefaultReconcileBatchSize bounds one reconciliation run.
const DefaultReconcileBatchSize = 1000

// ReconcilePastDueUseCase is the recurring control loop over past-due
// subscriptions whose grace deadline has elapsed. Each subscription is
// handled as an independent unit of work: a failure on one never blocks the
// rest of the batch, and every sub-action re-reads the subscription
// immediately before writing so concurrent runs converge on the same state
// (re-evaluating an already-resolved subscription is a no-op).
type ReconcilePastDueUseCase struct {
	subscriptionRepo billing.SubscriptionRepository
	invoiceRepo      billing.InvoiceRepository
	provider         PaymentProvider
	processBilling   *ProcessBillingUseCase
	cancel           *CancelSubscriptionUseCase
	downgrade        *DowngradeSubscriptionUseCase
	batchSize        int
	logger           logger.Interface
}

// NewReconcilePastDueUseCase creates a new ReconcilePastDueUseCase.
func NewReconcilePastDueUseCase(
	subscriptionRepo billing.SubscriptionRepository,
	invoiceRepo billing.InvoiceRepository,
	provider PaymentProvider,
	processBilling *ProcessBillingUseCase,
	cancel *CancelSubscriptionUseCase,
	downgrade *DowngradeSubscriptionUseCase,
	batchSize int,
	logger logger.Interface,
) *ReconcilePastDueUseCase {
	if batchSize <= 0 {
		batchSize = DefaultReconcileBatchSize
	}
	return &ReconcilePastDueUseCase{
		subscriptionRepo: subscriptionRepo,
		invoiceRepo:      invoiceRepo,
		provider:         provider,
		processBilling:   processBilling,
		cancel:           cancel,
		downgrade:        downgrade,
		batchSize:        batchSize,
		logger:           logger,
	}
}

// Execute runs one reconciliation pass and returns the number of
// subscriptions processed.
func (uc *ReconcilePastDueUseCase) Execute(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	subs, err := uc.subscriptionRepo.FindPastDueElapsed(ctx, now, uc.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find past-due subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return 0, nil
	}

	uc.logger.Infow("reconciling past-due subscriptions", "count", len(subs))

	processed := 0
	for _, sub := range subs {
		if ctx.Err() != nil {
			break
		}
		// Independent unit of work keyed by subscription; errors are logged
		// and the loop continues.
		if err := uc.reconcileOne(ctx, sub.ID(), now); err != nil {
			uc.logger.Errorw("failed to reconcile subscription",
				"subscription_id", sub.ID(),
				"subscription_sid", sub.SID(),
				"error", err,
			)
			continue
		}
		processed++
	}
	return processed, nil
}

// reconcileOne re-reads the subscription and branches on its recorded
// past-due reason. The fresh read makes re-application idempotent: a
// subscription resolved since the batch query is a no-op here.
func (uc *ReconcilePastDueUseCase) reconcileOne(ctx context.Context, subscriptionID uint, now time.Time) error {
	sub, err := uc.subscriptionRepo.GetByID(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to get subscription: %w", err)
	}
	if !sub.GraceElapsed(now) {
		// Resolved (or re-dated) since the batch query.
		return nil
	}

	reason, recognized := sub.Reason()
	if !recognized {
		// Not auto-resolved; needs manual intervention. Not fatal to the
		// batch.
		uc.logger.Errorw("past-due subscription has unrecognized reason, skipping",
			"subscription_sid", sub.SID(),
			"reason", sub.Metadata()[vo.MetaKeyReason],
		)
		return nil
	}

	switch reason {
	case vo.ReasonPaymentFailed:
		return uc.reconcilePaymentFailed(ctx, sub)
	case vo.ReasonPaymentMethodNotFound, vo.ReasonPendingPaymentMethod:
		return uc.reconcileMissingPaymentMethod(ctx, sub, now)
	case vo.ReasonPaymentPending:
		return uc.reconcileUnpaidInvoice(ctx, sub, now)
	default:
		uc.logger.Errorw("past-due reason has no reconciliation branch, skipping",
			"subscription_sid", sub.SID(),
			"reason", reason,
		)
		return nil
	}
}

// reconcilePaymentFailed re-checks the open invoice; settlement itself is
// owned by the paid-invoice webhook, so this branch only verifies the data
// is consistent.
func (uc *ReconcilePastDueUseCase) reconcilePaymentFailed(ctx context.Context, sub *billing.Subscription) error {
	inv, err := uc.invoiceRepo.GetOpenBySubscription(ctx, sub.ID())
	if err != nil {
		if errors.Is(err, billing.ErrInvoiceNotFound) {
			// Data inconsistency: reason says a payment failed but no open
			// invoice exists. Logged, not fatal to the run.
			uc.logger.Errorw("past-due subscription has no open invoice",
				"subscription_sid", sub.SID(),
				"reason", vo.ReasonPaymentFailed,
			)
			return nil
		}
		return fmt.Errorf("failed to look up open invoice: %w", err)
	}

	uc.logger.Debugw("open invoice still awaiting payment webhook",
		"subscription_sid", sub.SID(),
		"invoice_sid", inv.SID(),
	)
	return nil
}

// reconcileMissingPaymentMethod either resumes billing when a payment method
// appeared, or applies the subscription's due behaviour.
func (uc *ReconcilePastDueUseCase) reconcileMissingPaymentMethod(ctx context.Context, sub *billing.Subscription, now time.Time) error {
	methods, err := uc.provider.ListPaymentMethods(ctx, sub.CustomerID())
	if err != nil {
		return fmt.Errorf("failed to list payment methods: %w", err)
	}

	if len(methods) > 0 {
		// Cause resolved: clear past_due and run the billing task.
		sub.SetDefaultPaymentMethod(methods[0].ID)
		if err := sub.ResolvePastDue(); err != nil {
			return fmt.Errorf("failed to resolve past due: %w", err)
		}
		if err := uc.subscriptionRepo.Update(ctx, sub); err != nil {
			return fmt.Errorf("failed to update subscription: %w", err)
		}
		_, err := uc.processBilling.Execute(ctx, ProcessBillingCommand{
			SubscriptionID: sub.ID(),
			CurrentDate:    now,
		})
		if err != nil {
			return fmt.Errorf("failed to run billing task: %w", err)
		}
		return nil
	}

	return uc.applyDueBehaviour(ctx, sub)
}

// reconcileUnpaidInvoice handles an invoice that stayed unpaid past the
// grace deadline: the open invoice is voided and the due behaviour applies.
func (uc *ReconcilePastDueUseCase) reconcileUnpaidInvoice(ctx context.Context, sub *billing.Subscription, now time.Time) error {
	inv, err := uc.invoiceRepo.GetOpenBySubscription(ctx, sub.ID())
	if err != nil && !errors.Is(err, billing.ErrInvoiceNotFound) {
		return fmt.Errorf("failed to look up open invoice: %w", err)
	}
	if inv != nil {
		if err := inv.Void(); err != nil {
			return fmt.Errorf("failed to void invoice: %w", err)
		}
		if err := uc.invoiceRepo.UpdateStatus(ctx, inv); err != nil {
			return fmt.Errorf("failed to update invoice status: %w", err)
		}
		uc.logger.Infow("voided unpaid invoice past grace deadline",
			"subscription_sid", sub.SID(),
			"invoice_sid", inv.SID(),
		)
	}
	return uc.applyDueBehaviour(ctx, sub)
}

func (uc *ReconcilePastDueUseCase) applyDueBehaviour(ctx context.Context, sub *billing.Subscription) error {
	behaviour, err := sub.DueBehaviour()
	if err != nil {
		// Unvalidated or absent behaviour is never guessed from string
		// matching; the subscription waits for manual intervention.
		uc.logger.Errorw("past-due subscription has no valid due behaviour, skipping",
			"subscription_sid", sub.SID(),
			"error", err,
		)
		return nil
	}

	switch behaviour {
	case vo.DueBehaviourCancel:
		return uc.cancel.Execute(ctx, CancelSubscriptionCommand{
			SubscriptionID: sub.ID(),
			Note:           "grace period elapsed",
		})
	case vo.DueBehaviourDowngrade:
		fallbackRaw, ok := sub.Metadata()[vo.MetaKeyFallbackPlan]
		if !ok {
			uc.logger.Errorw("downgrade requested but no fallback plan configured, skipping",
				"subscription_sid", sub.SID(),
			)
			return nil
		}
		fallbackID, err := strconv.ParseUint(fallbackRaw, 10, 32)
		if err != nil {
			uc.logger.Errorw("fallback plan version is not a valid ID, skipping",
				"subscription_sid", sub.SID(),
				"fallback", fallbackRaw,
			)
			return nil
		}
		return uc.downgrade.Execute(ctx, DowngradeSubscriptionCommand{
			SubscriptionID:        sub.ID(),
			FallbackPlanVersionID: uint(fallbackID),
		})
	}
	return nil
}
