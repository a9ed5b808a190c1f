// Package errors provides application-level error types and utilities.
// It defines the error taxonomy shared by the metering API, the credential
// verification path, and the billing engine: validation, not found, conflict,
// credential lifecycle (expired/revoked), tenant gating, and retryable fetch
// failures.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeValidation        ErrorType = "validation_error"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeConflict          ErrorType = "conflict"
	ErrorTypeUnauthorized      ErrorType = "unauthorized"
	ErrorTypeForbidden         ErrorType = "forbidden"
	ErrorTypeInternal          ErrorType = "internal_error"
	ErrorTypeBadRequest        ErrorType = "bad_request"
	ErrorTypeExpired           ErrorType = "expired"
	ErrorTypeRevoked           ErrorType = "revoked"
	ErrorTypeProjectDisabled   ErrorType = "project_disabled"
	ErrorTypeWorkspaceDisabled ErrorType = "workspace_disabled"
	ErrorTypeFetch             ErrorType = "fetch_failed"
	ErrorTypeUnhandled         ErrorType = "unhandled"
)

// AppError represents an application error with additional context.
// Retryable is meaningful for fetch_failed errors only: it tells the caller
// whether repeating the operation can succeed.
type AppError struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Code      int       `json:"code"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func newError(t ErrorType, code int, message string, details ...string) *AppError {
	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{
		Type:    t,
		Message: message,
		Code:    code,
		Details: detail,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, details ...string) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, message, details...)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, details ...string) *AppError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, message, details...)
}

// NewConflictError creates a new conflict error
func NewConflictError(message string, details ...string) *AppError {
	return newError(ErrorTypeConflict, http.StatusConflict, message, details...)
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string, details ...string) *AppError {
	return newError(ErrorTypeUnauthorized, http.StatusUnauthorized, message, details...)
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(message string, details ...string) *AppError {
	return newError(ErrorTypeForbidden, http.StatusForbidden, message, details...)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, details ...string) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, message, details...)
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string, details ...string) *AppError {
	return newError(ErrorTypeBadRequest, http.StatusBadRequest, message, details...)
}

// NewExpiredError creates a credential-expired error
func NewExpiredError(message string, details ...string) *AppError {
	return newError(ErrorTypeExpired, http.StatusUnauthorized, message, details...)
}

// NewRevokedError creates a credential-revoked error
func NewRevokedError(message string, details ...string) *AppError {
	return newError(ErrorTypeRevoked, http.StatusUnauthorized, message, details...)
}

// NewProjectDisabledError creates a project-gating error
func NewProjectDisabledError(message string, details ...string) *AppError {
	return newError(ErrorTypeProjectDisabled, http.StatusForbidden, message, details...)
}

// NewWorkspaceDisabledError creates a workspace-gating error
func NewWorkspaceDisabledError(message string, details ...string) *AppError {
	return newError(ErrorTypeWorkspaceDisabled, http.StatusForbidden, message, details...)
}

// NewFetchError creates a fetch failure. retryable reports whether the caller
// may repeat the operation.
func NewFetchError(message string, retryable bool, details ...string) *AppError {
	err := newError(ErrorTypeFetch, http.StatusBadGateway, message, details...)
	err.Retryable = retryable
	return err
}

// NewUnhandledError wraps an unexpected failure. The original error text goes
// into Details so it reaches logs but never the API response body.
func NewUnhandledError(cause error) *AppError {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &AppError{
		Type:    ErrorTypeUnhandled,
		Message: "internal error",
		Code:    http.StatusInternalServerError,
		Details: detail,
	}
}

// IsAppError checks if the error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

func isType(err error, t ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == t
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool { return isType(err, ErrorTypeConflict) }

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// IsUnauthorizedError checks if the error is an unauthorized error
func IsUnauthorizedError(err error) bool { return isType(err, ErrorTypeUnauthorized) }

// IsForbiddenError checks if the error is a forbidden error
func IsForbiddenError(err error) bool { return isType(err, ErrorTypeForbidden) }

// IsFetchError checks if the error is a fetch failure
func IsFetchError(err error) bool { return isType(err, ErrorTypeFetch) }

// IsRetryable reports whether the error is a fetch failure marked retryable.
func IsRetryable(err error) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == ErrorTypeFetch && appErr.Retryable
}

// IsCredentialError reports whether the error belongs to the credential
// verification taxonomy (expired, revoked, tenant gating).
func IsCredentialError(err error) bool {
	appErr := GetAppError(err)
	if appErr == nil {
		return false
	}
	switch appErr.Type {
	case ErrorTypeExpired, ErrorTypeRevoked, ErrorTypeProjectDisabled, ErrorTypeWorkspaceDisabled:
		return true
	}
	return false
}

// IsDuplicateError checks if the error is a database duplicate key error
func IsDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// MySQL duplicate entry error
	if strings.Contains(errStr, "Duplicate entry") || strings.Contains(errStr, "duplicate key") {
		return true
	}
	// PostgreSQL unique violation
	if strings.Contains(errStr, "unique constraint") || strings.Contains(errStr, "violates unique constraint") {
		return true
	}
	return false
}
