// Copyright 2025 Ledgercore Contributors
//
// Package database provides sentinel errors for repository operations.

package database

import "errors"

// Sentinel errors for catalog repository operations.
var (
	// ErrNotFound is returned when a requested entity is not found in the database.
	ErrNotFound = errors.New("entity not found")

	// ErrBlockNotFound is returned when a block record is not found.
	ErrBlockNotFound = errors.New("block not found")

	// ErrKeyNotFound is returned when an authorized key record is not found.
	ErrKeyNotFound = errors.New("authorized key not found")

	// ErrOffChainDataNotFound is returned when an off-chain data record is not found.
	ErrOffChainDataNotFound = errors.New("off-chain data not found")

	// ErrAuditRecordNotFound is returned when an audit record is not found.
	ErrAuditRecordNotFound = errors.New("audit record not found")

	// ErrDuplicateBlockNumber is returned when an insert would violate the
	// unique index on blockNumber (spec.md I5).
	ErrDuplicateBlockNumber = errors.New("block number already exists")
)
