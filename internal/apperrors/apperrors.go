package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// The four rejection classes the lifecycle engine produces. Each is a
// distinct type so callers can react differently: reload ride state on
// InvalidState, prompt OTP re-entry on InvalidCredential, explain the refusal
// on PermissionDenied. None of them is retryable by the engine itself.

type NotFoundError struct {
	Resource string
	Field    string
	Value    string
}

func (e *NotFoundError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s not found with %s: %s", e.Resource, e.Field, e.Value)
}

func NotFound(resource, field, value string) error {
	return &NotFoundError{Resource: resource, Field: field, Value: value}
}

type InvalidStateError struct {
	Op     string
	Status string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s not allowed while ride is %s", e.Op, e.Status)
}

func InvalidState(op, status string) error {
	return &InvalidStateError{Op: op, Status: status}
}

type InvalidCredentialError struct {
	Reason string
}

func (e *InvalidCredentialError) Error() string { return e.Reason }

func InvalidCredential(reason string) error {
	return &InvalidCredentialError{Reason: reason}
}

type PermissionDeniedError struct {
	Reason string
}

func (e *PermissionDeniedError) Error() string { return e.Reason }

func PermissionDenied(reason string) error {
	return &PermissionDeniedError{Reason: reason}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsInvalidState(err error) bool {
	var is *InvalidStateError
	return errors.As(err, &is)
}

func IsInvalidCredential(err error) bool {
	var ic *InvalidCredentialError
	return errors.As(err, &ic)
}

func IsPermissionDenied(err error) bool {
	var pd *PermissionDeniedError
	return errors.As(err, &pd)
}

// HTTPStatus maps a rejection to its response code. Anything outside the
// taxonomy (persistence failures and the like) is a 500.
func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidState(err):
		return http.StatusConflict
	case IsInvalidCredential(err):
		return http.StatusUnprocessableEntity
	case IsPermissionDenied(err):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
