// Copyright 2025 Ledgercore Contributors
//
// Package ledgererr holds the error taxonomy shared by every engine
// component (spec.md §7), factored out of pkg/ledger so that pkg/keyregistry
// and pkg/bundle can report the same Kind values without importing
// pkg/ledger itself (which imports both of them). Grounded on the teacher's
// sentinel-error discipline (pkg/database/errors.go), generalized to a
// Kind-tagged type so callers can branch on category with errors.As/Is.

package ledgererr

import (
	"errors"
	"fmt"
)

// Kind is the closed taxonomy from spec.md §7.
type Kind string

const (
	KindInvalidInput         Kind = "INVALID_INPUT"
	KindAuthorizationDenied  Kind = "AUTHORIZATION_DENIED"
	KindSecurityViolation    Kind = "SECURITY_VIOLATION"
	KindIntegrityCheckFailed Kind = "INTEGRITY_CHECK_FAILED"
	KindConstraintViolation  Kind = "CONSTRAINT_VIOLATION"
	KindOverflow             Kind = "OVERFLOW"
	KindIOError              Kind = "IO_ERROR"
	KindTimeout              Kind = "TIMEOUT"
	KindStateConflict        Kind = "STATE_CONFLICT"
)

// Error is the engine's public error type. The public append/delete/
// rollback APIs always return one of these on failure, never a bare bool.
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

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is(err, &Error{Kind: K}) to check only the kind when
// the target carries no message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" && t.Cause == nil {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// New constructs an Error of the given kind.
func New(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, with
// IO_ERROR as the fallback for unrecognized errors per spec.md §7's
// "surfaced after exhaust" disposition for untagged I/O failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindIOError
}
