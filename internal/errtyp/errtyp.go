// Package errtyp defines the closed error taxonomy surfaced through every
// public operation of this core.
package errtyp

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of error categories a caller can switch on.
type Kind string

const (
	InvalidKey        Kind = "invalid_key"
	ConnectionError   Kind = "connection_error"
	Timeout           Kind = "timeout"
	StorageBackend    Kind = "storage_backend"
	NotFound          Kind = "not_found"
	Conflict          Kind = "conflict"
	MissingKeyPackage Kind = "missing_key_package"
	CryptoFailure     Kind = "crypto_failure"
	ProtocolFailure   Kind = "protocol_failure"
	SubscriptionError Kind = "subscription_error"
)

// Error is the concrete error type returned by this package's callers.
// Retryable marks errors where the caller (or the event processor, for
// ProtocolFailure) may reasonably retry the operation later.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Retry marks an Error as retryable and returns it for chaining.
func (e *Error) Retry() *Error {
	e.Retryable = true
	return e
}

// Is reports whether the first *Error in err's chain has the given Kind;
// further *Error values wrapped beneath it are not inspected.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// MissingKeyPackageFor builds the member-scoped preflight failure from
// spec.md's create_group preflight.
func MissingKeyPackageFor(member string) *Error {
	return &Error{
		Kind:    MissingKeyPackage,
		Message: fmt.Sprintf("member %q has no fetchable key package", member),
	}
}
