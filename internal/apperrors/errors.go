// Package apperrors defines the exchange-core error taxonomy
// (spec.md §7): a fixed set of kinds, each carrying a stable code and a
// retryability hint, so synchronous callers always get a structured,
// actionable error.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is one of the fixed error categories from spec.md §7.
type Kind string

const (
	KindValidation          Kind = "VALIDATION_ERROR"
	KindNotFound            Kind = "NOT_FOUND"
	KindInvalidState        Kind = "INVALID_STATE"
	KindRiskRejected        Kind = "RISK_REJECTED"
	KindRiskUnavailable     Kind = "RISK_UNAVAILABLE"
	KindMatchingUnavailable Kind = "MATCHING_UNAVAILABLE"
	KindStorageError        Kind = "STORAGE_ERROR"
	KindHalted              Kind = "HALTED"
	KindOverloaded          Kind = "OVERLOADED"
	KindInternal            Kind = "INTERNAL_ERROR"
)

// retryable reports whether callers should expect a retry to help.
var retryable = map[Kind]bool{
	KindValidation:          false,
	KindNotFound:            false,
	KindInvalidState:        false,
	KindRiskRejected:        false,
	KindRiskUnavailable:     true,
	KindMatchingUnavailable: true,
	KindStorageError:        true,
	KindHalted:              false,
	KindOverloaded:          true,
	KindInternal:            false,
}

// Error wraps an underlying cause with a taxonomy Kind.
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

// Code returns the stable, machine-readable code for this error.
func (e *Error) Code() string { return string(e.Kind) }

// Retryable reports whether a synchronous caller should expect a retry
// of the same operation to plausibly succeed.
func (e *Error) Retryable() bool { return retryable[e.Kind] }

// New constructs a taxonomy error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap constructs a taxonomy error around an existing cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Is reports whether the first taxonomy error in err's chain has the
// given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Retryable reports whether the first taxonomy error in err's chain is
// one a caller should expect to plausibly succeed on retry.
// A non-taxonomy error is treated as not retryable.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// Convenience constructors mirroring spec.md §7's named kinds.

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func InvalidState(format string, args ...interface{}) *Error {
	return New(KindInvalidState, fmt.Sprintf(format, args...))
}

func RiskRejected(reason string) *Error {
	return New(KindRiskRejected, reason)
}

func RiskUnavailable(cause error) *Error {
	return Wrap(KindRiskUnavailable, "risk engine unreachable", cause)
}

func MatchingUnavailable(cause error) *Error {
	return Wrap(KindMatchingUnavailable, "matching engine unreachable", cause)
}

func Storage(cause error) *Error {
	return Wrap(KindStorageError, "durability failure", cause)
}

func Halted(instrumentID string) *Error {
	return New(KindHalted, fmt.Sprintf("instrument %s is halted", instrumentID))
}

func Overloaded(instrumentID string) *Error {
	return New(KindOverloaded, fmt.Sprintf("instrument worker %s queue is full", instrumentID))
}

func Internal(format string, args ...interface{}) *Error {
	return New(KindInternal, fmt.Sprintf(format, args...))
}
