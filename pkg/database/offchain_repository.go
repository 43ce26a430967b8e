// Copyright 2025 Ledgercore Contributors
//
// Off-Chain Data Repository - the catalog half of the off-chain storage
// service (spec.md §4.3). Owns the metadata row; pkg/objectstore owns the
// encrypted file it describes. Grounded on repository_attestation.go's
// insert/get/delete shape.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// OffChainDataRow is the catalog row shape for one off-chain file's metadata.
type OffChainDataRow struct {
	ID              string
	DataHash        string
	Signature       string
	SignerPublicKey string
	FilePath        string
	FileSize        int64
	EncryptionIV    string
	EncryptionSalt  string
	ContentType     sql.NullString
	CreatedAt       time.Time
}

const offChainColumns = `id, data_hash, signature, signer_public_key, file_path,
	file_size, encryption_iv, encryption_salt, content_type, created_at`

func scanOffChainRow(scanner interface {
	Scan(dest ...interface{}) error
}) (*OffChainDataRow, error) {
	row := &OffChainDataRow{}
	err := scanner.Scan(
		&row.ID, &row.DataHash, &row.Signature, &row.SignerPublicKey, &row.FilePath,
		&row.FileSize, &row.EncryptionIV, &row.EncryptionSalt, &row.ContentType, &row.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// OffChainDataRepository handles off-chain metadata catalog operations.
type OffChainDataRepository struct {
	client *Client
}

// NewOffChainDataRepository creates a new off-chain data repository.
func NewOffChainDataRepository(client *Client) *OffChainDataRepository {
	return &OffChainDataRepository{client: client}
}

// Insert persists a new off-chain metadata row within tx.
func (r *OffChainDataRepository) Insert(ctx context.Context, tx *Tx, row *OffChainDataRow) error {
	query := `
		INSERT INTO off_chain_data (` + offChainColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := tx.ExecContext(ctx, query,
		row.ID, row.DataHash, row.Signature, row.SignerPublicKey, row.FilePath,
		row.FileSize, row.EncryptionIV, row.EncryptionSalt, row.ContentType, row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert off-chain data: %w", err)
	}
	return nil
}

// GetByID retrieves an off-chain metadata row by its id.
func (r *OffChainDataRepository) GetByID(ctx context.Context, id string) (*OffChainDataRow, error) {
	query := `SELECT ` + offChainColumns + ` FROM off_chain_data WHERE id = $1`
	row, err := scanOffChainRow(r.client.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrOffChainDataNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get off-chain data %s: %w", id, err)
	}
	return row, nil
}

// GetByIDWithinTx retrieves an off-chain metadata row inside tx, used by
// rollback/clear so the delete-file-then-delete-row sequence sees a
// consistent snapshot.
func (r *OffChainDataRepository) GetByIDWithinTx(ctx context.Context, tx *Tx, id string) (*OffChainDataRow, error) {
	query := `SELECT ` + offChainColumns + ` FROM off_chain_data WHERE id = $1`
	row, err := scanOffChainRow(tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrOffChainDataNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get off-chain data %s: %w", id, err)
	}
	return row, nil
}

// DeleteByID removes an off-chain metadata row within tx. Callers must
// unlink the referenced file themselves (pkg/objectstore.Store.Delete);
// this repository never touches the filesystem.
func (r *OffChainDataRepository) DeleteByID(ctx context.Context, tx *Tx, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM off_chain_data WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete off-chain data %s: %w", id, err)
	}
	return nil
}

// ListAll returns every off-chain metadata row, used by export and by the
// orphan reconciler to build the referenced-filename set (spec.md §4.6).
func (r *OffChainDataRepository) ListAll(ctx context.Context) ([]*OffChainDataRow, error) {
	rows, err := r.client.QueryContext(ctx, `SELECT `+offChainColumns+` FROM off_chain_data ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list off-chain data: %w", err)
	}
	defer rows.Close()

	var result []*OffChainDataRow
	for rows.Next() {
		row, err := scanOffChainRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan off-chain data: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
