// Package apperr defines the error taxonomy shared by every octolab
// component: lab service, runtime implementations, netd, and the
// teardown worker all return *Error so callers can branch on Kind
// instead of string-matching messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for the purposes of HTTP status mapping and
// retry policy.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindPreflightFailed Kind = "preflight_failed"
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindTimeout         Kind = "timeout"
	KindExternalFailure Kind = "external_failure"
	KindCancelled       Kind = "cancelled"
	KindNotImplemented  Kind = "not_implemented"
	KindInternal        Kind = "internal"
)

// Error wraps an underlying cause with a Kind and an operation label,
// in the shape of a runtime error type (kind, operation, wrapped cause,
// Unwrap), generalized beyond runtime operations to every layer of the
// service.
type Error struct {
	Kind      Kind
	Operation string
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Operation, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Operation, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error of the given kind, wrapping err.
func New(kind Kind, operation string, err error) *Error {
	return &Error{Kind: kind, Operation: operation, Err: err}
}

// Retry marks e as retryable and returns it, for chaining at the call site.
func (e *Error) Retry() *Error {
	e.Retryable = true
	return e
}

// Is reports whether target is an *Error with the same Kind, so callers
// can use errors.Is(err, apperr.NotFound("", nil)) style checks if desired,
// or more commonly errors.As plus a Kind comparison.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

func NotFound(operation string, err error) *Error {
	return New(KindNotFound, operation, err)
}

func Validation(operation string, err error) *Error {
	return New(KindValidation, operation, err)
}

func Conflict(operation string, err error) *Error {
	return New(KindConflict, operation, err)
}

func PreflightFailed(operation string, err error) *Error {
	return New(KindPreflightFailed, operation, err)
}

func Unauthenticated(operation string, err error) *Error {
	return New(KindUnauthenticated, operation, err)
}

func Forbidden(operation string, err error) *Error {
	return New(KindForbidden, operation, err)
}

func Timeout(operation string, err error) *Error {
	return New(KindTimeout, operation, err)
}

func ExternalFailure(operation string, err error) *Error {
	return New(KindExternalFailure, operation, err).Retry()
}

func Cancelled(operation string, err error) *Error {
	return New(KindCancelled, operation, err)
}

func NotImplemented(operation string) *Error {
	return New(KindNotImplemented, operation, errors.New("not implemented"))
}

func Internal(operation string, err error) *Error {
	return New(KindInternal, operation, err)
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error,
// defaulting to KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
