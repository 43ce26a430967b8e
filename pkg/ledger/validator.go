// Copyright 2025 Ledgercore Contributors
//
// Chain Validator (spec.md §4.4): structural integrity (I1/I2/I3/I5/I6) and
// historical-authorization compliance (I4), in a default batched mode
// bounded by a hard in-memory block-count limit, plus a true streaming
// variant over the catalog's offset/limit page iterator for chains beyond
// that limit. Validation never stops on first failure — it scans the
// whole chain and reports every offending block number.

package ledger

import (
	"context"
	"fmt"
	"math"

	"github.com/tamperledger/ledgercore/pkg/database"
	"github.com/tamperledger/ledgercore/pkg/objectstore"
)

// ValidationMode selects whether off-chain integrity is checked in
// addition to the catalog-only checks (spec.md §4.4).
type ValidationMode int

const (
	// ValidationFull checks I1-I6 plus off-chain file integrity for every
	// off-chain block. This is the default.
	ValidationFull ValidationMode = iota
	// ValidationStructuralOnly runs the same I1-I6 checks, including the
	// I4 authorization lookup, but skips decrypting and re-hashing
	// off-chain payloads.
	ValidationStructuralOnly
)

// Structural/size limits from spec.md §4.4.
const (
	maxBlocksForDetailedValidation = 500000
	warnBlocksForDetailedValidation = 100000
	defaultValidationBatchSize      = 1000
)

// ChainValidationResult reports the outcome of a full or partial chain scan.
type ChainValidationResult struct {
	IsStructurallyIntact bool
	IsFullyCompliant     bool
	TotalBlocks          int64
	InvalidBlocks        []int64
	RevokedBlocks        []int64
	ValidationReport     string
}

func newResult() *ChainValidationResult {
	return &ChainValidationResult{IsStructurallyIntact: true, IsFullyCompliant: true}
}

func (res *ChainValidationResult) recordInvalid(n int64, reason string) {
	res.IsStructurallyIntact = false
	res.InvalidBlocks = append(res.InvalidBlocks, n)
	res.ValidationReport += fmt.Sprintf("block %d: INVALID (%s)\n", n, reason)
}

func (res *ChainValidationResult) recordRevoked(n int64) {
	res.IsFullyCompliant = false
	res.RevokedBlocks = append(res.RevokedBlocks, n)
	res.ValidationReport += fmt.Sprintf("block %d: signer not authorized at block timestamp\n", n)
}

func (res *ChainValidationResult) finish() *ChainValidationResult {
	if res.ValidationReport == "" {
		res.ValidationReport = fmt.Sprintf("chain intact: %d blocks, structurally valid and fully compliant\n", res.TotalBlocks)
	} else {
		res.ValidationReport = fmt.Sprintf("chain scan over %d blocks:\n", res.TotalBlocks) + res.ValidationReport
	}
	return res
}

// ValidateChainDetailed loads the whole chain in batches of 1000 and
// validates it (spec.md §4.4's default algorithm). It refuses to run above
// the 500,000-block hard limit; callers above that must use
// ValidateChainStreaming instead.
func (e *Engine) ValidateChainDetailed(ctx context.Context, mode ValidationMode) (*ChainValidationResult, error) {
	count, err := e.repos.Blocks.Count(ctx)
	if err != nil {
		return nil, newError(KindIOError, err, "count blocks before validation")
	}
	if count > maxBlocksForDetailedValidation {
		return nil, newError(KindInvalidInput, nil,
			"chain has %d blocks, exceeding the %d-block limit for detailed validation; use streaming validation", count, maxBlocksForDetailedValidation)
	}
	if count > warnBlocksForDetailedValidation {
		e.logger.Printf("warning: validating %d blocks in detailed mode; consider streaming validation above %d", count, warnBlocksForDetailedValidation)
	}

	res := newResult()
	res.TotalBlocks = count
	var prevHash string
	var prevTimestampSet bool
	var prevTimestamp int64

	err = e.repos.Blocks.StreamPages(ctx, defaultValidationBatchSize, func(page []*database.BlockRow) error {
		for _, row := range page {
			b := fromRow(row)
			e.validateOne(ctx, b, prevHash, prevTimestampSet, prevTimestamp, mode, res)
			prevHash = b.Hash
			prevTimestamp = b.Timestamp.UnixNano()
			prevTimestampSet = true
		}
		return nil
	})
	if err != nil {
		return nil, newError(KindIOError, err, "stream blocks for validation")
	}
	return res.finish(), nil
}

// ValidateChainStreaming iterates the chain via the catalog's (offset,
// limit) page accessor instead of materializing it, per spec.md §4.4/§9.
// offsets are validated against INT32_MAX because the per-page
// implementation ultimately casts to a 32-bit LIMIT/OFFSET parameter on
// some dialects.
func (e *Engine) ValidateChainStreaming(ctx context.Context, mode ValidationMode, pageSize int) (*ChainValidationResult, error) {
	if pageSize <= 0 {
		pageSize = defaultValidationBatchSize
	}

	res := newResult()
	var prevHash string
	var prevTimestampSet bool
	var prevTimestamp int64
	var offset int64

	for {
		if offset > math.MaxInt32 {
			return nil, newError(KindOverflow, nil, "validation offset %d exceeds INT32_MAX", offset)
		}
		page, err := e.repos.Blocks.Page(ctx, offset, pageSize)
		if err != nil {
			return nil, newError(KindIOError, err, "page blocks for streaming validation")
		}
		if len(page) == 0 {
			break
		}
		for _, row := range page {
			b := fromRow(row)
			e.validateOne(ctx, b, prevHash, prevTimestampSet, prevTimestamp, mode, res)
			prevHash = b.Hash
			prevTimestamp = b.Timestamp.UnixNano()
			prevTimestampSet = true
			res.TotalBlocks++
		}
		offset += int64(len(page))
		if len(page) < pageSize {
			break
		}
	}
	return res.finish(), nil
}

// validateOne checks one block against I1-I6 and, in ValidationFull mode,
// off-chain integrity, recording any failure on res. Genesis (block 0) is
// exempt from I1 and the timestamp-order check (no predecessor) and from
// signature verification and the I4 authorization check (no registered
// signer); its hash and, in ValidationFull mode, off-chain integrity are
// still checked.
func (e *Engine) validateOne(ctx context.Context, b *Block, prevHash string, havePrev bool, prevTimestampNano int64, mode ValidationMode, res *ChainValidationResult) {
	if !b.IsGenesis() {
		if havePrev && b.PreviousHash != prevHash {
			res.recordInvalid(b.BlockNumber, "previousHash does not match the prior block's hash")
			return
		}
		if havePrev && b.Timestamp.UnixNano() < prevTimestampNano {
			res.recordInvalid(b.BlockNumber, "timestamp precedes the prior block's timestamp")
			return
		}
	}

	if !b.VerifyHash() {
		res.recordInvalid(b.BlockNumber, "hash does not match canonical encoding")
		return
	}

	if !b.IsGenesis() {
		ok, err := signerVerify(b.SignerPublicKey, []byte(b.Hash), []byte(b.Signature))
		if err != nil || !ok {
			res.recordInvalid(b.BlockNumber, "signature does not verify")
			return
		}
	}

	if mode == ValidationFull && b.IsOffChain() {
		if err := e.verifyOffChainIntegrity(ctx, b); err != nil {
			res.recordInvalid(b.BlockNumber, "off-chain integrity check failed: "+err.Error())
			return
		}
	}

	if !b.IsGenesis() {
		authorized, err := e.registry.WasAuthorizedAt(ctx, b.SignerPublicKey, b.Timestamp)
		if err != nil {
			res.recordInvalid(b.BlockNumber, "failed to resolve signer authorization: "+err.Error())
			return
		}
		if !authorized {
			res.recordRevoked(b.BlockNumber)
		}
	}
}

func (e *Engine) verifyOffChainIntegrity(ctx context.Context, b *Block) error {
	if b.OffChainDataID == "" {
		return fmt.Errorf("off-chain block has no associated metadata row")
	}
	row, err := e.repos.OffChainData.GetByID(ctx, b.OffChainDataID)
	if err != nil {
		return err
	}
	meta := objectstore.Metadata{
		DataHash:        row.DataHash,
		Signature:       row.Signature,
		SignerPublicKey: row.SignerPublicKey,
		FilePath:        row.FilePath,
		FileSize:        row.FileSize,
		EncryptionIV:    row.EncryptionIV,
		EncryptionSalt:  row.EncryptionSalt,
	}
	return e.store.Read(discard{}, meta, b.BlockNumber, signerVerify)
}

// discard is an io.Writer sink used when verifying off-chain integrity
// without needing the plaintext itself.
type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
