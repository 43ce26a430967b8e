// Copyright 2025 Ledgercore Contributors
//
// Error re-exports the shared pkg/ledgererr taxonomy under the names
// registry.go uses, the same re-export shape as pkg/ledger/errors.go. Kept
// separate from pkg/ledger to avoid an import cycle (pkg/ledger imports
// pkg/keyregistry for authorization checks).

package keyregistry

import "github.com/tamperledger/ledgercore/pkg/ledgererr"

type (
	Kind  = ledgererr.Kind
	Error = ledgererr.Error
)

const (
	KindInvalidInput      = ledgererr.KindInvalidInput
	KindSecurityViolation = ledgererr.KindSecurityViolation
	KindStateConflict     = ledgererr.KindStateConflict
	KindIOError           = ledgererr.KindIOError
)
