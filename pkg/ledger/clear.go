// Copyright 2025 Ledgercore Contributors
//
// Clear (spec.md §4.6) empties the entire chain: every block and its
// off-chain files, paged so an arbitrarily long chain never sits in one
// transaction. Authorized keys and audit records are left untouched; only
// pkg/bundle's import-with-replace path clears those, via the repositories
// directly.

package ledger

import "context"

const defaultClearPageSize = 500

// Clear deletes every block in the chain, unlinking off-chain files as
// their rows are removed. It runs under the writer lock; callers that also
// want authorized keys and audit history removed should go through
// pkg/bundle's Import in replace mode instead.
func (e *Engine) Clear(ctx context.Context) (int64, error) {
	e.writer.Lock()
	defer e.writer.Unlock()

	var totalDeleted int64
	for {
		tx, err := e.client.BeginTx(ctx)
		if err != nil {
			return totalDeleted, newError(KindIOError, err, "begin clear transaction")
		}

		page, err := e.repos.Blocks.DeletePage(ctx, tx, defaultClearPageSize)
		if err != nil {
			tx.Rollback()
			return totalDeleted, newError(KindIOError, err, "delete block page")
		}
		if len(page) == 0 {
			tx.Rollback()
			break
		}

		var removedFiles []string
		var failed error
		for _, row := range page {
			if !row.OffChainDataID.Valid {
				continue
			}
			offRow, err := e.repos.OffChainData.GetByIDWithinTx(ctx, tx, row.OffChainDataID.String)
			if err != nil {
				failed = newError(KindIOError, err, "look up off-chain data for block %d", row.BlockNumber)
				break
			}
			if err := e.repos.OffChainData.DeleteByID(ctx, tx, offRow.ID); err != nil {
				failed = newError(KindIOError, err, "delete off-chain metadata for block %d", row.BlockNumber)
				break
			}
			removedFiles = append(removedFiles, offRow.FilePath)
		}
		if failed != nil {
			tx.Rollback()
			return totalDeleted, failed
		}

		if err := tx.Commit(); err != nil {
			return totalDeleted, newError(KindIOError, err, "commit clear page")
		}
		totalDeleted += int64(len(page))

		for _, name := range removedFiles {
			if err := e.store.DeleteByName(name); err != nil {
				e.logger.Printf("clear: failed to unlink off-chain file %s: %v", name, err)
			}
		}

		if len(page) < defaultClearPageSize {
			break
		}
	}
	return totalDeleted, nil
}
