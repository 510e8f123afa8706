package memory

import (
	"context"
	"errors"
	"fmt"
)

// Code is a machine-readable error classification surfaced to callers
// alongside the human-readable message.
type Code string

const (
	CodeValidation  Code = "validation"
	CodeNotFound    Code = "not_found"
	CodeUnavailable Code = "dependency_unavailable"
	CodeConflict    Code = "conflict"
	CodeCancelled   Code = "cancelled"
	CodeTimeout     Code = "timeout"
	CodeInternal    Code = "internal"
)

// Error carries a classification code with the message. Partial failures are
// never represented as errors; they are recorded on document results.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidation returns a validation error for malformed input.
func NewValidation(format string, args ...any) error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound returns a not-found error for an unknown project or document.
func NewNotFound(format string, args ...any) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewConflict returns a conflict error for an invalid state transition.
func NewConflict(format string, args ...any) error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// NewUnavailable returns a dependency-unavailable error, optionally wrapping
// the underlying transport failure.
func NewUnavailable(err error, format string, args ...any) error {
	return &Error{Code: CodeUnavailable, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewTimeout returns a timeout error wrapping the underlying cause.
func NewTimeout(err error, format string, args ...any) error {
	return &Error{Code: CodeTimeout, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf classifies any error. Context cancellation and deadline errors map
// onto the taxonomy even when they were never wrapped.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Code
	}
	if errors.Is(err, context.Canceled) {
		return CodeCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeInternal
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return CodeOf(err) == CodeValidation }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return CodeOf(err) == CodeConflict }

// IsUnavailable reports whether err is a dependency-unavailable error.
func IsUnavailable(err error) bool { return CodeOf(err) == CodeUnavailable }

// IsCancelled reports whether err is a cancellation error.
func IsCancelled(err error) bool { return CodeOf(err) == CodeCancelled }

// IsTimeout reports whether err is a timeout error.
func IsTimeout(err error) bool { return CodeOf(err) == CodeTimeout }

// IsRetryable reports whether a failed call may be retried. Timeouts and
// unavailability are transient; validation, not-found, conflict and
// cancellation are permanent. Unclassified errors are treated as transient
// since they are almost always transport-level.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeValidation, CodeNotFound, CodeConflict, CodeCancelled:
		return false
	default:
		return true
	}
}
