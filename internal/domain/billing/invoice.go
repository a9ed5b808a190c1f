package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
)

// InvoiceLine is one billed feature for the invoice period.
type InvoiceLine struct {
	FeatureSlug string
	Description string
	Quantity    decimal.Decimal
	UnitAmount  int64 // cents
	Amount      int64 // cents
	Currency    string
	Prorated    bool
}

// Invoice is a line-itemed bill for one subscription and billing period.
// Created once per period; immutable after finalization except for status
// (draft -> open -> paid/void).
type Invoice struct {
	id             uint
	sid            string // inv_...
	subscriptionID uint
	customerID     string
	periodStart    time.Time
	periodEnd      time.Time
	currency       string
	status         vo.InvoiceStatus
	lines          []InvoiceLine
	providerRef    *string // external payment provider invoice ID
	createdAt      time.Time
	updatedAt      time.Time
}

// NewInvoice opens a draft invoice for a billing period.
func NewInvoice(sid string, subscriptionID uint, customerID, currency string, periodStart, periodEnd time.Time) (*Invoice, error) {
	if sid == "" {
		return nil, fmt.Errorf("invoice SID is required")
	}
	if subscriptionID == 0 {
		return nil, fmt.Errorf("subscription ID is required")
	}
	if customerID == "" {
		return nil, fmt.Errorf("customer ID is required")
	}
	if !periodEnd.After(periodStart) {
		return nil, fmt.Errorf("period end must be after period start")
	}

	now := time.Now().UTC()
	return &Invoice{
		sid:            sid,
		subscriptionID: subscriptionID,
		customerID:     customerID,
		periodStart:    periodStart,
		periodEnd:      periodEnd,
		currency:       currency,
		status:         vo.InvoiceDraft,
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

// ReconstructInvoice rebuilds an invoice from persistence.
func ReconstructInvoice(
	id uint,
	sid string,
	subscriptionID uint,
	customerID string,
	periodStart, periodEnd time.Time,
	currency string,
	status vo.InvoiceStatus,
	lines []InvoiceLine,
	providerRef *string,
	createdAt, updatedAt time.Time,
) (*Invoice, error) {
	if id == 0 {
		return nil, fmt.Errorf("invoice ID cannot be zero")
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid invoice status: %s", status)
	}
	inv, err := NewInvoice(sid, subscriptionID, customerID, currency, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	inv.id = id
	inv.status = status
	inv.lines = lines
	inv.providerRef = providerRef
	inv.createdAt = createdAt
	inv.updatedAt = updatedAt
	return inv, nil
}

func (i *Invoice) ID() uint                 { return i.id }
func (i *Invoice) SID() string              { return i.sid }
func (i *Invoice) SubscriptionID() uint     { return i.subscriptionID }
func (i *Invoice) CustomerID() string       { return i.customerID }
func (i *Invoice) PeriodStart() time.Time   { return i.periodStart }
func (i *Invoice) PeriodEnd() time.Time     { return i.periodEnd }
func (i *Invoice) Currency() string         { return i.currency }
func (i *Invoice) Status() vo.InvoiceStatus { return i.status }
func (i *Invoice) Lines() []InvoiceLine     { return i.lines }
func (i *Invoice) ProviderRef() *string     { return i.providerRef }
func (i *Invoice) CreatedAt() time.Time     { return i.createdAt }
func (i *Invoice) UpdatedAt() time.Time     { return i.updatedAt }

// SetID sets the invoice ID (persistence layer only).
func (i *Invoice) SetID(id uint) error {
	if i.id != 0 {
		return fmt.Errorf("invoice ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("invoice ID cannot be zero")
	}
	i.id = id
	return nil
}

// AddLine appends a line to a draft invoice.
func (i *Invoice) AddLine(line InvoiceLine) error {
	if i.status != vo.InvoiceDraft {
		return fmt.Errorf("cannot add line to %s invoice", i.status)
	}
	if line.FeatureSlug == "" {
		return fmt.Errorf("line feature slug is required")
	}
	if line.Quantity.IsNegative() {
		return fmt.Errorf("negative quantity %s for feature %s", line.Quantity, line.FeatureSlug)
	}
	i.lines = append(i.lines, line)
	i.updatedAt = time.Now().UTC()
	return nil
}

// TotalAmount sums all line amounts in cents.
func (i *Invoice) TotalAmount() int64 {
	var total int64
	for _, l := range i.lines {
		total += l.Amount
	}
	return total
}

// Finalize moves a draft invoice to open, freezing its lines.
func (i *Invoice) Finalize() error {
	if i.status != vo.InvoiceDraft {
		return fmt.Errorf("cannot finalize %s invoice", i.status)
	}
	i.status = vo.InvoiceOpen
	i.updatedAt = time.Now().UTC()
	return nil
}

// AttachProviderRef records the external payment provider's invoice ID.
func (i *Invoice) AttachProviderRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("provider reference is required")
	}
	if i.providerRef != nil {
		return fmt.Errorf("provider reference is already set")
	}
	i.providerRef = &ref
	i.updatedAt = time.Now().UTC()
	return nil
}

// MarkPaid settles an open invoice.
func (i *Invoice) MarkPaid() error {
	if i.status == vo.InvoicePaid {
		return nil
	}
	if i.status != vo.InvoiceOpen {
		return fmt.Errorf("cannot mark %s invoice as paid", i.status)
	}
	i.status = vo.InvoicePaid
	i.updatedAt = time.Now().UTC()
	return nil
}

// Void cancels an unpaid invoice.
func (i *Invoice) Void() error {
	if i.status == vo.InvoiceVoid {
		return nil
	}
	if i.status == vo.InvoicePaid {
		return fmt.Errorf("cannot void a paid invoice")
	}
	i.status = vo.InvoiceVoid
	i.updatedAt = time.Now().UTC()
	return nil
}

// IsOpen reports whether collection is still pending.
func (i *Invoice) IsOpen() bool {
	return i.status == vo.InvoiceOpen
}
