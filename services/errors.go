package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeConfiguration      ErrorType = "configuration"
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeTransientIO        ErrorType = "transient_io"
	ErrorTypeSettlementRejected ErrorType = "settlement_rejected"
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeInternal           ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Wrap returns a copy of e caused by err. The copy matches e under errors.Is
// and has its own details, so sentinels are never mutated.
func (e *DomainError) Wrap(err error) *DomainError {
	return NewDomainError(e.Type, e.Message, err)
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Configuration Errors
	ErrInvalidPolicy = NewDomainError(ErrorTypeConfiguration, "invalid policy document", nil)
	ErrPolicyMissing = NewDomainError(ErrorTypeConfiguration, "policy not configured", nil)
	ErrInvalidRule   = NewDomainError(ErrorTypeConfiguration, "invalid rule expression", nil)

	// Validation Errors
	ErrInvalidTransaction = NewDomainError(ErrorTypeValidation, "invalid transaction request", nil)
	ErrLedgerRuleFailed   = NewDomainError(ErrorTypeValidation, "ledger validation rule failed", nil)

	// Transient Errors
	ErrSubmissionFailed = NewDomainError(ErrorTypeTransientIO, "chain submission failed", nil)

	// Settlement Errors
	ErrSettlementRejected = NewDomainError(ErrorTypeSettlementRejected, "settlement rejected", nil)

	// Not Found Errors
	ErrAccountNotFound = NewDomainError(ErrorTypeNotFound, "account not found", nil)

	// Internal Errors
	ErrInternal      = NewDomainError(ErrorTypeInternal, "internal error", nil)
	ErrDatabaseError = NewDomainError(ErrorTypeInternal, "database error", nil)
)

// Error type checking helper functions

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	return GetErrorType(err) == ErrorTypeConfiguration
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsTransientError checks if an error is a transient I/O error
func IsTransientError(err error) bool {
	return GetErrorType(err) == ErrorTypeTransientIO
}

// IsSettlementRejected checks if an error is a settlement rejection
func IsSettlementRejected(err error) bool {
	return GetErrorType(err) == ErrorTypeSettlementRejected
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// IsPermanent reports whether retrying cannot change the outcome.
func IsPermanent(err error) bool {
	switch GetErrorType(err) {
	case ErrorTypeConfiguration, ErrorTypeValidation:
		return true
	default:
		return false
	}
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapConfiguration wraps an error as a configuration error
func WrapConfiguration(message string, err error) error {
	return NewDomainError(ErrorTypeConfiguration, message, err)
}

// WrapTransient wraps an error as a transient I/O error
func WrapTransient(message string, err error) error {
	return NewDomainError(ErrorTypeTransientIO, message, err)
}

