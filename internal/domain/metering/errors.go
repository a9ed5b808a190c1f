package metering

import "errors"

var (
	ErrDuplicateEvent     = errors.New("usage event with this idempotence key already recorded")
	ErrEventNotFound      = errors.New("usage event not found")
	ErrFeatureNotEntitled = errors.New("feature not entitled for customer")
	ErrQuotaExceeded      = errors.New("usage quota exceeded")
)
