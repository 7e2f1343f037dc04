package ocr

import (
	"errors"
	"fmt"
)

// ErrorClass buckets OCR service failures for the retry policy.
type ErrorClass string

const (
	// ClassTransient covers transport failures, timeouts and
	// 5xx/429-style responses. Retried up to the ceiling.
	ClassTransient ErrorClass = "transient"
	// ClassAuth covers 401/403 responses. Retried like transient,
	// then degrades to the demo result instead of failing.
	ClassAuth ErrorClass = "auth"
	// ClassPermanent covers every other terminal service error.
	ClassPermanent ErrorClass = "permanent"
)

// APIError is the terminal error surfaced when the OCR service could
// not be used. The last underlying cause is attached.
type APIError struct {
	Status  int
	Class   ErrorClass
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("ocr service error (status %d, %s): %s", e.Status, e.Class, e.Message)
	}
	return fmt.Sprintf("ocr service error (%s): %s", e.Class, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classify maps an HTTP status to an error class. Status 0 means the
// request never produced a response (transport error or timeout).
func classify(status int) ErrorClass {
	switch {
	case status == 401 || status == 403:
		return ClassAuth
	case status == 0 || status == 408 || status == 429 || status >= 500:
		return ClassTransient
	default:
		return ClassPermanent
	}
}

// IsAuth reports whether err is an OCR auth failure.
func IsAuth(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Class == ClassAuth
}
