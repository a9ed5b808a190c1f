package usecases

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meterline/meterline/internal/domain/metering"
)

// PaymentMethod is a stored payment instrument at the external provider.
type PaymentMethod struct {
	ID    string
	Type  string
	Last4 string
}

// ProviderInvoiceItem is one line pushed to the external provider invoice.
type ProviderInvoiceItem struct {
	Description string
	Quantity    decimal.Decimal
	UnitAmount  int64 // cents
	Amount      int64 // cents
	Currency    string
}

// PaymentProvider is the external payment collaborator. Every call is a
// fallible remote call; callers must treat failures as retryable on the next
// scheduler tick and never leave local state half-applied.
type PaymentProvider interface {
	// CreateInvoice opens a provider invoice and returns its reference.
	// autoCharge selects automatic collection against the default payment
	// method versus emailing the invoice for manual settlement.
	CreateInvoice(ctx context.Context, customerID, currency string, autoCharge bool) (string, error)
	AddInvoiceItem(ctx context.Context, invoiceRef string, item ProviderInvoiceItem) error
	// FinalizeInvoice closes the provider invoice for collection.
	FinalizeInvoice(ctx context.Context, invoiceRef string) error
	ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error)
}

// UsageReader answers aggregated usage questions from the analytics store.
// The analytics store is eventually consistent and authoritative for usage
// totals; billing tolerates brief ingestion lag.
type UsageReader interface {
	GetAggregatedUsage(ctx context.Context, customerID, featureSlug string, start, end time.Time, method metering.AggregationMethod) (decimal.Decimal, error)
}

// EntitlementInvalidator drops cached entitlements after a subscription
// mutation so the next metered call re-resolves against fresh state.
type EntitlementInvalidator interface {
	InvalidateCustomer(ctx context.Context, customerID string) error
}
