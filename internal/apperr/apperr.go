// Package apperr defines the tagged error taxonomy shared by every layer of
// the platform, replacing exception-style control flow with explicit, typed
// error values that callers switch on.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry policy and HTTP status mapping.
type Kind string

const (
	Validation Kind = "validation"
	NotFound   Kind = "not_found"
	Conflict   Kind = "conflict"
	Transient  Kind = "transient"
	Permanent  Kind = "permanent"
	Cancelled  Kind = "cancelled"
	Internal   Kind = "internal"
)

// Error is the concrete error type carried through the system. Only Internal
// is meant to ever reach a panic/recover boundary unhandled.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match on Kind via a sentinel constructed with the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func newErr(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Message: msg, Cause: cause}
}

func Validationf(format string, args ...any) *Error {
	return newErr(Validation, fmt.Sprintf(format, args...), nil)
}

func NotFoundf(format string, args ...any) *Error {
	return newErr(NotFound, fmt.Sprintf(format, args...), nil)
}

func Conflictf(format string, args ...any) *Error {
	return newErr(Conflict, fmt.Sprintf(format, args...), nil)
}

func Transientf(cause error, format string, args ...any) *Error {
	return newErr(Transient, fmt.Sprintf(format, args...), cause)
}

func Permanentf(cause error, format string, args ...any) *Error {
	return newErr(Permanent, fmt.Sprintf(format, args...), cause)
}

func Cancelledf(format string, args ...any) *Error {
	return newErr(Cancelled, fmt.Sprintf(format, args...), nil)
}

func Internalf(cause error, format string, args ...any) *Error {
	return newErr(Internal, fmt.Sprintf(format, args...), cause)
}

// KindOf extracts the Kind of err, defaulting to Internal for unrecognized
// errors so that nothing silently bypasses the taxonomy.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsRetryable reports whether the stage/orchestrator layer should retry err
// with backoff rather than terminating the unit of work.
func IsRetryable(err error) bool {
	return KindOf(err) == Transient
}
