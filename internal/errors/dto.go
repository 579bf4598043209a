package errors

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrorResponse represents the standard error response structure
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Display       string         `json:"message"`
	InternalError string         `json:"internal_error,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

// NewErrorResponse shapes an error for the response body. Hints attached
// with WithHint become the caller-facing message; the raw error chain goes
// into internal_error and any reportable details ride along verbatim.
func NewErrorResponse(err error) *ErrorResponse {
	if err == nil {
		return nil
	}
	detail := ErrorDetail{
		Display:       err.Error(),
		InternalError: err.Error(),
		Details:       ReportableDetails(err),
	}
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		detail.Display = strings.Join(hints, "\n")
	}
	return &ErrorResponse{Error: detail}
}
