package api

import (
	ierr "github.com/instpay/instpay/internal/errors"
)

// ErrorPayload converts a façade error into the HTTP status and response
// body an embedding host should return. Every error the façades produce
// maps to a stable status through the sentinel it is marked with.
func ErrorPayload(err error) (int, *ierr.ErrorResponse) {
	return ierr.HTTPStatusFromErr(err), ierr.NewErrorResponse(err)
}
