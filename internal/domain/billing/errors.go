package billing

import (
	"errors"
	"fmt"
)

var (
	ErrSubscriptionNotFound    = errors.New("subscription not found")
	ErrSubscriptionCanceled    = errors.New("subscription canceled")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrPlanVersionNotFound     = errors.New("plan version not found")
	ErrPlanVersionInactive     = errors.New("plan version inactive")
	ErrInvoiceNotFound         = errors.New("invoice not found")
	ErrInvoiceExists           = errors.New("invoice already exists for period")
	ErrNegativeUsage           = errors.New("negative usage quantity")
	ErrStaleSubscription       = errors.New("subscription was modified concurrently")
)

// ErrInvalidTransition wraps ErrInvalidStatusTransition with the attempted
// states.
func ErrInvalidTransition(from, to string) error {
	return fmt.Errorf("%w: from %s to %s", ErrInvalidStatusTransition, from, to)
}
