package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for the pipeline taxonomy.
const (
	CodeNormalizationFailed = "NORMALIZATION_FAILED"
	CodeIdentityConflict    = "IDENTITY_CONFLICT"
	CodeResponderTimeout    = "RESPONDER_TIMEOUT"
	CodeResponderFailed     = "RESPONDER_FAILED"
	CodeDeliveryTransient   = "DELIVERY_TRANSIENT"
	CodeDeliveryPermanent   = "DELIVERY_PERMANENT"
)

// DomainError standardizes application errors. Retryable tells the ingestion
// dispatcher whether re-processing the event can succeed.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Retryable  bool
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Retryable:  true,
		Err:        err,
	}
}

// NewNormalizationError marks a malformed inbound payload. Non-retryable;
// the dispatcher routes it to the dead-letter path.
func NewNormalizationError(message string, details map[string]any) error {
	return &DomainError{
		Code:       CodeNormalizationFailed,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

// NewIdentityConflict marks a transient race during identity creation,
// resolved by re-fetch.
func NewIdentityConflict(err error) error {
	return &DomainError{
		Code:       CodeIdentityConflict,
		Message:    "identifier created concurrently",
		HTTPStatus: http.StatusConflict,
		Retryable:  true,
		Err:        err,
	}
}

// NewResponderTimeout marks a responder call that exceeded its deadline.
func NewResponderTimeout(err error) error {
	return &DomainError{
		Code:       CodeResponderTimeout,
		Message:    "responder timed out",
		HTTPStatus: http.StatusGatewayTimeout,
		Retryable:  true,
		Err:        err,
	}
}

// NewResponderFailure marks a failed responder call.
func NewResponderFailure(err error) error {
	return &DomainError{
		Code:       CodeResponderFailed,
		Message:    "responder failed",
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Err:        err,
	}
}

// NewDeliveryTransient marks a send failure worth retrying with backoff.
func NewDeliveryTransient(err error) error {
	return &DomainError{
		Code:       CodeDeliveryTransient,
		Message:    "delivery failed transiently",
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Err:        err,
	}
}

// NewDeliveryPermanent marks a send failure that must never be retried.
func NewDeliveryPermanent(err error) error {
	return &DomainError{
		Code:       CodeDeliveryPermanent,
		Message:    "delivery rejected permanently",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Retryable:  true,
		Err:        err,
	}
}

// IsRetryable reports whether re-processing can succeed. Unknown errors are
// treated as retryable so transient infrastructure faults are not
// dead-lettered prematurely.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Retryable
	}
	return true
}

// HasCode reports whether err carries the given taxonomy code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
