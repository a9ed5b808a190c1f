package valueobjects

import "fmt"

// WhenToBill determines which cycle boundary a charge is anchored to.
type WhenToBill string

const (
	PayInAdvance WhenToBill = "pay_in_advance"
	PayInArrear  WhenToBill = "pay_in_arrear"
)

// IsValid reports whether the value belongs to the closed set.
func (w WhenToBill) IsValid() bool {
	return w == PayInAdvance || w == PayInArrear
}

// CollectionMethod determines how an invoice is settled.
type CollectionMethod string

const (
	ChargeAutomatically CollectionMethod = "charge_automatically"
	SendInvoice         CollectionMethod = "send_invoice"
)

// IsValid reports whether the value belongs to the closed set.
func (c CollectionMethod) IsValid() bool {
	return c == ChargeAutomatically || c == SendInvoice
}

// PastDueReason is the closed set of recognized reasons recorded in
// subscription metadata on entry to past_due. Anything outside this set is
// not auto-resolved by the reconciliation scheduler.
type PastDueReason string

const (
	ReasonPaymentFailed         PastDueReason = "payment_failed"
	ReasonPaymentMethodNotFound PastDueReason = "payment_method_not_found"
	ReasonPendingPaymentMethod  PastDueReason = "pending_payment_method"
	ReasonPaymentPending        PastDueReason = "payment_pending"
)

// IsValid reports whether the reason is recognized.
func (r PastDueReason) IsValid() bool {
	switch r {
	case ReasonPaymentFailed, ReasonPaymentMethodNotFound, ReasonPendingPaymentMethod, ReasonPaymentPending:
		return true
	}
	return false
}

// DueBehaviour selects the punitive action once the grace period elapses.
type DueBehaviour string

const (
	DueBehaviourCancel    DueBehaviour = "cancel"
	DueBehaviourDowngrade DueBehaviour = "downgrade"
)

// ParseDueBehaviour validates a metadata value into the closed enum.
func ParseDueBehaviour(s string) (DueBehaviour, error) {
	switch DueBehaviour(s) {
	case DueBehaviourCancel:
		return DueBehaviourCancel, nil
	case DueBehaviourDowngrade:
		return DueBehaviourDowngrade, nil
	}
	return "", fmt.Errorf("unrecognized due behaviour: %q", s)
}

// InvoiceStatus is the lifecycle of a generated invoice.
type InvoiceStatus string

const (
	InvoiceDraft InvoiceStatus = "draft"
	InvoiceOpen  InvoiceStatus = "open"
	InvoicePaid  InvoiceStatus = "paid"
	InvoiceVoid  InvoiceStatus = "void"
)

// IsValid reports whether the status belongs to the closed set.
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceDraft, InvoiceOpen, InvoicePaid, InvoiceVoid:
		return true
	}
	return false
}

// Metadata keys recognized on the subscription metadata bag. The bag stays an
// open string map for diagnostics, but recognized keys are enumerated here so
// branches never match on free-form spelling.
const (
	MetaKeyReason       = "reason"
	MetaKeyNote         = "note"
	MetaKeyDueBehaviour = "due_behaviour"
	MetaKeyFallbackPlan = "fallback_plan_version"
)
