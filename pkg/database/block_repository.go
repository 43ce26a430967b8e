// Copyright 2025 Ledgercore Contributors
//
// Block Repository - CRUD and range operations over the linear chain.
// Grounded on repository_attestation.go's query/scan/sentinel-translate
// shape, generalized to the append-only, tip-resolving access patterns the
// ledger engine needs (insert-in-transaction, streamed range reads,
// paged tail deletes for rollback/clear).

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BlockRow is the catalog row shape for one chain block.
type BlockRow struct {
	BlockNumber         int64
	Hash                string
	PreviousHash        sql.NullString
	Data                string
	Signature           string
	SignerPublicKey     string
	RecipientPublicKey  sql.NullString
	ContentCategory     sql.NullString
	ManualKeywords      sql.NullString
	AutoKeywords        sql.NullString
	SearchableContent   sql.NullString
	IsEncrypted         bool
	EncryptionMetadata  sql.NullString
	OffChainDataID      sql.NullString
	Timestamp           time.Time
	CreatedAt           time.Time
}

const blockColumns = `block_number, hash, previous_hash, data, signature, signer_public_key,
	recipient_public_key, content_category, manual_keywords, auto_keywords, searchable_content,
	is_encrypted, encryption_metadata, off_chain_data_id, timestamp, created_at`

func scanBlockRow(scanner interface {
	Scan(dest ...interface{}) error
}) (*BlockRow, error) {
	row := &BlockRow{}
	err := scanner.Scan(
		&row.BlockNumber, &row.Hash, &row.PreviousHash, &row.Data, &row.Signature,
		&row.SignerPublicKey, &row.RecipientPublicKey, &row.ContentCategory,
		&row.ManualKeywords, &row.AutoKeywords, &row.SearchableContent,
		&row.IsEncrypted, &row.EncryptionMetadata, &row.OffChainDataID,
		&row.Timestamp, &row.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// BlockRepository handles block catalog operations.
type BlockRepository struct {
	client *Client
}

// NewBlockRepository creates a new block repository.
func NewBlockRepository(client *Client) *BlockRepository {
	return &BlockRepository{client: client}
}

// InsertBlock inserts a new block row within tx. A unique-index violation
// on block_number is surfaced as ErrDuplicateBlockNumber.
func (r *BlockRepository) InsertBlock(ctx context.Context, tx *Tx, row *BlockRow) error {
	query := `
		INSERT INTO blocks (` + blockColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := tx.ExecContext(ctx, query,
		row.BlockNumber, row.Hash, row.PreviousHash, row.Data, row.Signature,
		row.SignerPublicKey, row.RecipientPublicKey, row.ContentCategory,
		row.ManualKeywords, row.AutoKeywords, row.SearchableContent,
		row.IsEncrypted, row.EncryptionMetadata, row.OffChainDataID,
		row.Timestamp, row.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateBlockNumber
		}
		return fmt.Errorf("failed to insert block: %w", err)
	}
	return nil
}

// GetBlockByNumber retrieves a single block by its number.
func (r *BlockRepository) GetBlockByNumber(ctx context.Context, number int64) (*BlockRow, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks WHERE block_number = $1`
	row, err := scanBlockRow(r.client.QueryRowContext(ctx, query, number))
	if err == sql.ErrNoRows {
		return nil, ErrBlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", number, err)
	}
	return row, nil
}

// tipWithinTx returns the highest-numbered block visible inside tx, or nil
// if the chain is empty. Resolving the tip inside the same transaction
// that will insert the next block is what makes block-number assignment
// race-free under the writer lock. Other packages reach it through the
// exported TipWithinTx below.
func (r *BlockRepository) tipWithinTx(ctx context.Context, tx *Tx) (*BlockRow, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks ORDER BY block_number DESC LIMIT 1`
	row, err := scanBlockRow(tx.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chain tip: %w", err)
	}
	return row, nil
}

// TipWithinTx is the package-external accessor for tipWithinTx, used only
// by pkg/ledger's writer-lock-held append path.
func (r *BlockRepository) TipWithinTx(ctx context.Context, tx *Tx) (*BlockRow, error) {
	return r.tipWithinTx(ctx, tx)
}

// Tip returns the highest-numbered block outside any transaction, for
// read-only callers (e.g. reporting, health checks).
func (r *BlockRepository) Tip(ctx context.Context) (*BlockRow, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks ORDER BY block_number DESC LIMIT 1`
	row, err := scanBlockRow(r.client.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chain tip: %w", err)
	}
	return row, nil
}

// ListRange returns blocks with block_number in [from, to], ordered
// ascending.
func (r *BlockRepository) ListRange(ctx context.Context, from, to int64) ([]*BlockRow, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks WHERE block_number BETWEEN $1 AND $2 ORDER BY block_number ASC`
	rows, err := r.client.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list block range: %w", err)
	}
	defer rows.Close()
	return scanBlockRows(rows)
}

// StreamPages calls fn with successive pages of pageSize blocks, in
// ascending block_number order, until the chain is exhausted or fn returns
// an error. This backs the batched chain validator (ValidateChainDetailed)
// and export without materializing the whole chain.
func (r *BlockRepository) StreamPages(ctx context.Context, pageSize int, fn func([]*BlockRow) error) error {
	if pageSize <= 0 {
		pageSize = 500
	}
	var after int64 = -1
	for {
		query := `SELECT ` + blockColumns + ` FROM blocks WHERE block_number > $1 ORDER BY block_number ASC LIMIT $2`
		rows, err := r.client.QueryContext(ctx, query, after, pageSize)
		if err != nil {
			return fmt.Errorf("failed to page blocks: %w", err)
		}
		page, err := scanBlockRows(rows)
		rows.Close()
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		after = page[len(page)-1].BlockNumber
		if len(page) < pageSize {
			return nil
		}
	}
}

// DeleteAbove deletes every block with block_number > number, returning
// the deleted rows (ascending) so the caller can unlink their off-chain
// files before or alongside the row delete, per spec.md §4.6's rollback
// algorithm.
func (r *BlockRepository) DeleteAbove(ctx context.Context, tx *Tx, number int64) ([]*BlockRow, error) {
	selectQuery := `SELECT ` + blockColumns + ` FROM blocks WHERE block_number > $1 ORDER BY block_number ASC`
	rows, err := tx.QueryContext(ctx, selectQuery, number)
	if err != nil {
		return nil, fmt.Errorf("failed to select blocks above %d: %w", number, err)
	}
	deleted, err := scanBlockRows(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	deleteQuery := `DELETE FROM blocks WHERE block_number > $1`
	if _, err := tx.ExecContext(ctx, deleteQuery, number); err != nil {
		return nil, fmt.Errorf("failed to delete blocks above %d: %w", number, err)
	}
	return deleted, nil
}

// DeletePage deletes up to pageSize blocks with the lowest block_numbers,
// returning the deleted rows. Used by the streamed clear operation so a
// very long chain is never held fully in one transaction.
func (r *BlockRepository) DeletePage(ctx context.Context, tx *Tx, pageSize int) ([]*BlockRow, error) {
	selectQuery := `SELECT ` + blockColumns + ` FROM blocks ORDER BY block_number ASC LIMIT $1`
	rows, err := tx.QueryContext(ctx, selectQuery, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to select block page: %w", err)
	}
	page, err := scanBlockRows(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(page) == 0 {
		return nil, nil
	}

	deleteQuery := `DELETE FROM blocks WHERE block_number <= $1`
	if _, err := tx.ExecContext(ctx, deleteQuery, page[len(page)-1].BlockNumber); err != nil {
		return nil, fmt.Errorf("failed to delete block page: %w", err)
	}
	return page, nil
}

// Page returns up to limit blocks starting at the given zero-based offset,
// in ascending block_number order. This is the pull-based `(offset, limit)`
// iterator spec.md §4.4/§9 asks the catalog layer to provide the streaming
// validator, distinct from StreamPages' keyset pagination: callers that
// need to resume from an arbitrary position (not just "the next page")
// use this instead.
func (r *BlockRepository) Page(ctx context.Context, offset int64, limit int) ([]*BlockRow, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks ORDER BY block_number ASC LIMIT $1 OFFSET $2`
	rows, err := r.client.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to page blocks at offset %d: %w", offset, err)
	}
	defer rows.Close()
	return scanBlockRows(rows)
}

// Count returns the total number of blocks in the chain.
func (r *BlockRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.client.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count blocks: %w", err)
	}
	return count, nil
}

func scanBlockRows(rows *sql.Rows) ([]*BlockRow, error) {
	var blocks []*BlockRow
	for rows.Next() {
		row, err := scanBlockRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		blocks = append(blocks, row)
	}
	return blocks, rows.Err()
}
