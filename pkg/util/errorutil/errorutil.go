package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by the command executor, the gateways and the HTTP layer.
const (
	CodeValidation      = "VALIDATION_FAILED"
	CodeNotFound        = "NOT_FOUND"
	CodePolicyViolation = "POLICY_VIOLATION"
	CodeConflict        = "CONFLICT"
	CodeTransient       = "TRANSIENT"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeInternal        = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
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
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewPolicyViolation reports an operation forbidden by an invariant, such as editing a system role.
func NewPolicyViolation(message string, details map[string]any) error {
	return NewDomainError(CodePolicyViolation, message, http.StatusForbidden, details)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewTransient reports a backing-store failure with no definite cause.
func NewTransient(err error) error {
	return &DomainError{
		Code:       CodeTransient,
		Message:    "backing store unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// FromStatus classifies an HTTP-style status class reported by a persistence gateway.
func FromStatus(status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	switch {
	case status == http.StatusUnauthorized:
		return NewUnauthorized(message)
	case status == http.StatusForbidden:
		return NewPolicyViolation(message, nil)
	case status == http.StatusNotFound:
		return &DomainError{Code: CodeNotFound, Message: message, HTTPStatus: http.StatusNotFound}
	case status == http.StatusConflict:
		return NewConflict(message, nil)
	case status >= 500:
		return NewTransient(errors.New(message))
	case status >= 400:
		return NewValidationError(message, nil)
	default:
		return NewTransient(fmt.Errorf("unexpected status %d: %s", status, message))
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
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// CodeOf returns the DomainError code carried by err, or an empty string.
func CodeOf(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

func IsValidation(err error) bool      { return CodeOf(err) == CodeValidation }
func IsNotFound(err error) bool        { return CodeOf(err) == CodeNotFound }
func IsPolicyViolation(err error) bool { return CodeOf(err) == CodePolicyViolation }
func IsConflict(err error) bool        { return CodeOf(err) == CodeConflict }
func IsTransient(err error) bool       { return CodeOf(err) == CodeTransient }
