// Copyright 2025 Ledgercore Contributors
//
// Rollback (spec.md §4.6): truncate the chain's tail back to a target
// block number or by a block count. The tail's block and off-chain catalog
// rows are deleted in one transaction and the off-chain files are unlinked
// only after it commits, so a mid-failure never leaves a row pointing at a
// deleted file; a file whose unlink fails is logged and left on disk with
// no row referencing it. Runs under the writer lock like Append.

package ledger

import (
	"context"
	"math"

	"github.com/tamperledger/ledgercore/pkg/database"
)

// RollbackToBlock deletes every block with a number greater than
// keepBlockNumber, restoring the chain to the state it was in right after
// that block was appended. keepBlockNumber must name an existing block;
// genesis (0) is a valid target, producing an empty-but-for-genesis chain.
func (e *Engine) RollbackToBlock(ctx context.Context, keepBlockNumber int64) (*ChainValidationResult, error) {
	if keepBlockNumber < 0 {
		return nil, newError(KindInvalidInput, nil, "keepBlockNumber must be >= 0")
	}

	e.writer.Lock()
	defer e.writer.Unlock()

	if _, err := e.repos.Blocks.GetBlockByNumber(ctx, keepBlockNumber); err != nil {
		if err == database.ErrBlockNotFound {
			return nil, newError(KindInvalidInput, err, "block %d does not exist", keepBlockNumber)
		}
		return nil, newError(KindIOError, err, "look up rollback target block %d", keepBlockNumber)
	}

	tx, err := e.client.BeginTx(ctx)
	if err != nil {
		return nil, newError(KindIOError, err, "begin rollback transaction")
	}
	committed := false
	var removedFiles []string
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	deleted, err := e.repos.Blocks.DeleteAbove(ctx, tx, keepBlockNumber)
	if err != nil {
		return nil, newError(KindIOError, err, "delete blocks above %d", keepBlockNumber)
	}

	for _, row := range deleted {
		if !row.OffChainDataID.Valid {
			continue
		}
		offRow, err := e.repos.OffChainData.GetByIDWithinTx(ctx, tx, row.OffChainDataID.String)
		if err != nil {
			if err == database.ErrOffChainDataNotFound {
				continue
			}
			return nil, newError(KindIOError, err, "look up off-chain data for block %d", row.BlockNumber)
		}
		if err := e.repos.OffChainData.DeleteByID(ctx, tx, offRow.ID); err != nil {
			return nil, newError(KindIOError, err, "delete off-chain metadata for block %d", row.BlockNumber)
		}
		removedFiles = append(removedFiles, offRow.FilePath)
	}

	if err := tx.Commit(); err != nil {
		return nil, newError(KindIOError, err, "commit rollback")
	}
	committed = true

	for _, name := range removedFiles {
		if err := e.store.DeleteByName(name); err != nil {
			e.logger.Printf("rollback: failed to unlink orphaned off-chain file %s: %v", name, err)
		}
	}

	result, err := e.ValidateChainDetailed(ctx, ValidationStructuralOnly)
	if err != nil {
		e.logger.Printf("rollback: post-rollback validation could not run: %v", err)
		return nil, nil
	}
	if !result.IsStructurallyIntact {
		e.logger.Printf("rollback to block %d left the chain structurally unsound: %s", keepBlockNumber, result.ValidationReport)
	}
	return result, nil
}

// RollbackBlocks removes the most recent count blocks, resolving the tip
// first so the target block number is computed from the chain's current
// state rather than a caller-guessed number.
func (e *Engine) RollbackBlocks(ctx context.Context, count int64) (*ChainValidationResult, error) {
	if count <= 0 {
		return nil, newError(KindInvalidInput, nil, "count must be positive")
	}

	tip, err := e.repos.Blocks.Tip(ctx)
	if err != nil {
		return nil, newError(KindIOError, err, "resolve chain tip")
	}
	if tip == nil {
		return nil, newError(KindInvalidInput, nil, "chain is empty; nothing to roll back")
	}
	if count > tip.BlockNumber {
		return nil, newError(KindInvalidInput, nil,
			"cannot roll back %d blocks; chain tip is at block %d", count, tip.BlockNumber)
	}
	if tip.BlockNumber-count < 0 || tip.BlockNumber-count > math.MaxInt64 {
		return nil, newError(KindOverflow, nil, "rollback target block number overflowed")
	}
	return e.RollbackToBlock(ctx, tip.BlockNumber-count)
}
