// Copyright 2025 Ledgercore Contributors
//
// Error is the tagged result sum spec.md §7 asks for, translated into the
// idiom Go code actually uses: a typed error with a Kind, wrapping the
// lower-level cause. The taxonomy itself lives in pkg/ledgererr so that
// pkg/keyregistry and pkg/bundle can report it without importing pkg/ledger
// (which imports both); this file just re-exports it under the names the
// rest of this package already uses.

package ledger

import "github.com/tamperledger/ledgercore/pkg/ledgererr"

type (
	// Kind is the closed taxonomy from spec.md §7.
	Kind = ledgererr.Kind
	// Error is the engine's public error type.
	Error = ledgererr.Error
)

const (
	KindInvalidInput         = ledgererr.KindInvalidInput
	KindAuthorizationDenied  = ledgererr.KindAuthorizationDenied
	KindSecurityViolation    = ledgererr.KindSecurityViolation
	KindIntegrityCheckFailed = ledgererr.KindIntegrityCheckFailed
	KindConstraintViolation  = ledgererr.KindConstraintViolation
	KindOverflow             = ledgererr.KindOverflow
	KindIOError              = ledgererr.KindIOError
	KindTimeout              = ledgererr.KindTimeout
	KindStateConflict        = ledgererr.KindStateConflict
)

func newError(kind Kind, cause error, format string, args ...interface{}) *Error {
	return ledgererr.New(kind, cause, format, args...)
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, with
// IO_ERROR as the fallback for unrecognized errors.
func KindOf(err error) Kind {
	return ledgererr.KindOf(err)
}
