package ferry

import (
	"errors"
	"fmt"
)

// Code is a wire-level symbolic error name, stable across the HTTP
// control surface and the library API.
type Code string

// Error codes per the external interface's error taxonomy.
const (
	CodeBadRequest                Code = "bad_request"
	CodeUnauthorized              Code = "unauthorized"
	CodeNotFound                  Code = "not_found"
	CodeLeaseInvalid              Code = "lease_invalid"
	CodeExecutionDeadlineExceeded Code = "execution_deadline_exceeded"
	CodeIdempotencyConflict       Code = "idempotency_conflict"
	CodeTenantCapExceeded         Code = "tenant_cap_exceeded"
	CodeTransient                 Code = "transient"
	CodeInternal                  Code = "internal"
)

// Error is a typed ferry error carrying a wire-level Code alongside the
// usual message/cause chain. Callers use errors.Is/errors.As or Code()
// to branch on it; nothing in the core swallows an error silently.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ferry: %s: %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("ferry: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Code, so that
// errors.Is(err, ferry.New(ferry.CodeNotFound, "")) matches any NotFound
// error regardless of message.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}

	return e.Code == other.Code
}

// New constructs an *Error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an *Error that wraps a lower-level cause, e.g. a
// transient store error retried internally before surfacing.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// HasCode reports whether err is, or wraps, a *Error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	return e.Code == code
}

// Sentinel errors for the common cases, matching each other via Code
// through Error.Is — errors.Is(err, ErrNotFound) is true for any
// *Error carrying CodeNotFound, not just this exact value.
var (
	ErrBadRequest                = New(CodeBadRequest, "bad request")
	ErrUnauthorized              = New(CodeUnauthorized, "unauthorized")
	ErrNotFound                  = New(CodeNotFound, "not found")
	ErrLeaseInvalid              = New(CodeLeaseInvalid, "lease invalid")
	ErrExecutionDeadlineExceeded = New(CodeExecutionDeadlineExceeded, "execution deadline exceeded")
	ErrIdempotencyConflict       = New(CodeIdempotencyConflict, "idempotency conflict")
	ErrTenantCapExceeded         = New(CodeTenantCapExceeded, "tenant cap exceeded")
	ErrTransient                 = New(CodeTransient, "transient store error")
	ErrInternal                  = New(CodeInternal, "internal error")

	// ErrNoStore is raised when a component is constructed without a
	// backing store.
	ErrNoStore = New(CodeInternal, "no store configured")
)
