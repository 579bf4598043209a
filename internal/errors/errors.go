package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound             = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists        = new(ErrCodeAlreadyExists, "resource already exists")
	ErrValidation           = new(ErrCodeValidation, "validation error")
	ErrInvalidOperation     = new(ErrCodeInvalidOperation, "invalid operation")
	ErrAmbiguousRemoteState = new(ErrCodeAmbiguousRemoteState, "ambiguous remote state")
	ErrOverLimit            = new(ErrCodeOverLimit, "existing usage is over plan limits")
	ErrMissingLineItems     = new(ErrCodeMissingLineItems, "missing required line items")
	ErrRedundantRequest     = new(ErrCodeRedundantRequest, "redundant subscribe request")
	ErrNoPaymentMethod      = new(ErrCodeNoPaymentMethod, "no default payment method")
	ErrURLPairIncomplete    = new(ErrCodeURLPairIncomplete, "successURL and cancelURL must be provided together")
	ErrTooFrequent          = new(ErrCodeTooFrequent, "operation attempted too frequently")
	ErrRateLimited          = new(ErrCodeRateLimited, "rate limited by billing provider")
	ErrHTTPClient           = new(ErrCodeHTTPClient, "http client error")
	ErrSystem               = new(ErrCodeSystemError, "system error")
	// maps errors to http status codes
	statusCodeMap = map[error]int{
		ErrHTTPClient:           http.StatusInternalServerError,
		ErrNotFound:             http.StatusNotFound,
		ErrAlreadyExists:        http.StatusConflict,
		ErrValidation:           http.StatusBadRequest,
		ErrInvalidOperation:     http.StatusBadRequest,
		ErrAmbiguousRemoteState: http.StatusConflict,
		ErrOverLimit:            http.StatusConflict,
		ErrMissingLineItems:     http.StatusBadRequest,
		ErrRedundantRequest:     http.StatusConflict,
		ErrNoPaymentMethod:      http.StatusPaymentRequired,
		ErrURLPairIncomplete:    http.StatusBadRequest,
		ErrTooFrequent:          http.StatusTooManyRequests,
		ErrRateLimited:          http.StatusTooManyRequests,
		ErrSystem:               http.StatusInternalServerError,
	}
)

const (
	ErrCodeHTTPClient           = "http_client_error"
	ErrCodeSystemError          = "system_error"
	ErrCodeNotFound             = "not_found"
	ErrCodeAlreadyExists        = "already_exists"
	ErrCodeValidation           = "validation_error"
	ErrCodeInvalidOperation     = "invalid_operation"
	ErrCodeAmbiguousRemoteState = "ambiguous_remote_state"
	ErrCodeOverLimit            = "over_limit"
	ErrCodeMissingLineItems     = "missing_line_items"
	ErrCodeRedundantRequest     = "redundant_request"
	ErrCodeNoPaymentMethod      = "no_payment_method"
	ErrCodeURLPairIncomplete    = "url_pair_incomplete"
	ErrCodeTooFrequent          = "too_frequent"
	ErrCodeRateLimited          = "rate_limited"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

// new creates a new InternalError
func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidOperation checks if an error is an invalid operation error
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// IsOverLimit checks if an error is an over plan limit error
func IsOverLimit(err error) bool {
	return errors.Is(err, ErrOverLimit)
}

// IsTooFrequent checks if an error is a too frequent error
func IsTooFrequent(err error) bool {
	return errors.Is(err, ErrTooFrequent)
}

// IsRateLimited checks if an error is a rate limit error
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}
