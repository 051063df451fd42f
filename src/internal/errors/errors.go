// Package errors provides the error taxonomy shared by the reconciliation engine
// and everything that drives it.
//
// Every error produced by keen-netstate carries a machine-matchable Kind so that
// callers can tell bad input (InvalidArgument) apart from a state that drifted
// under us (VerificationError), a timed out wait (Timeout), or an internal defect (Bug).
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind represents a category of error that can occur in the application.
type Kind string

const (
	// KindInvalidArgument indicates a schema or semantic violation in the desired state.
	KindInvalidArgument Kind = "InvalidArgument"

	// KindVerification indicates that the observed state does not match the desired state.
	KindVerification Kind = "VerificationError"

	// KindNotImplemented indicates a recognized but unsupported feature combination.
	KindNotImplemented Kind = "NotImplementedError"

	// KindTimeout indicates that a bounded wait was exceeded.
	KindTimeout Kind = "Timeout"

	// KindBug indicates an internal invariant violation.
	KindBug Kind = "Bug"

	// KindConfig indicates an application configuration error.
	KindConfig Kind = "ConfigError"

	// KindBackend indicates a failure reported by the kernel or the network management backend.
	KindBackend Kind = "BackendError"
)

// Error represents a domain-specific error with a kind and optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause of the error for errors.Is and errors.As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a new domain error with the specified kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new domain error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of the first domain error in the chain.
// Errors that do not carry a kind are reported as Bug.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindBug
}

// IsKind reports whether any error in the chain has the given kind.
func IsKind(err error, kind Kind) bool {
	return stderrors.Is(err, &Error{Kind: kind})
}

// Is is a re-export of the standard errors.Is.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is a re-export of the standard errors.As.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// NewInvalidArgument creates a new invalid argument error.
func NewInvalidArgument(format string, args ...any) *Error {
	return Newf(KindInvalidArgument, format, args...)
}

// NewVerificationError creates a new verification error.
func NewVerificationError(format string, args ...any) *Error {
	return Newf(KindVerification, format, args...)
}

// NewNotImplemented creates a new not-implemented error.
func NewNotImplemented(format string, args ...any) *Error {
	return Newf(KindNotImplemented, format, args...)
}

// NewTimeout creates a new timeout error.
func NewTimeout(format string, args ...any) *Error {
	return Newf(KindTimeout, format, args...)
}

// NewBug creates a new internal invariant violation error.
func NewBug(format string, args ...any) *Error {
	return Newf(KindBug, format, args...)
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string, cause error) *Error {
	return Wrap(KindConfig, message, cause)
}

// NewBackendError creates a new backend error.
func NewBackendError(message string, cause error) *Error {
	return Wrap(KindBackend, message, cause)
}
