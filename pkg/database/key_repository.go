// Copyright 2025 Ledgercore Contributors
//
// Authorized Key Repository - CRUD and point-in-time authorization queries
// for the key registry (spec.md §4.5). Grounded on
// repository_attestation.go's query/scan shape.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AuthorizedKeyRow is the catalog row shape for one registered signer key.
type AuthorizedKeyRow struct {
	PublicKey    string
	Label        sql.NullString
	AuthorizedAt time.Time
	RevokedAt    sql.NullTime
	RevokedBy    sql.NullString
	IsAdmin      bool
}

const authorizedKeyColumns = `public_key, label, authorized_at, revoked_at, revoked_by, is_admin`

func scanAuthorizedKeyRow(scanner interface {
	Scan(dest ...interface{}) error
}) (*AuthorizedKeyRow, error) {
	row := &AuthorizedKeyRow{}
	err := scanner.Scan(&row.PublicKey, &row.Label, &row.AuthorizedAt, &row.RevokedAt, &row.RevokedBy, &row.IsAdmin)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// AuthorizedKeyRepository handles key registry catalog operations.
type AuthorizedKeyRepository struct {
	client *Client
}

// NewAuthorizedKeyRepository creates a new authorized key repository.
func NewAuthorizedKeyRepository(client *Client) *AuthorizedKeyRepository {
	return &AuthorizedKeyRepository{client: client}
}

// Insert registers a new signer key within tx.
func (r *AuthorizedKeyRepository) Insert(ctx context.Context, tx *Tx, row *AuthorizedKeyRow) error {
	query := `INSERT INTO authorized_keys (` + authorizedKeyColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := tx.ExecContext(ctx, query, row.PublicKey, row.Label, row.AuthorizedAt, row.RevokedAt, row.RevokedBy, row.IsAdmin)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("key %s already registered", row.PublicKey)
		}
		return fmt.Errorf("failed to insert authorized key: %w", err)
	}
	return nil
}

// GetByPublicKey retrieves one registered key.
func (r *AuthorizedKeyRepository) GetByPublicKey(ctx context.Context, publicKey string) (*AuthorizedKeyRow, error) {
	query := `SELECT ` + authorizedKeyColumns + ` FROM authorized_keys WHERE public_key = $1`
	row, err := scanAuthorizedKeyRow(r.client.QueryRowContext(ctx, query, publicKey))
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get authorized key: %w", err)
	}
	return row, nil
}

// ListAll returns every registered key, active or revoked.
func (r *AuthorizedKeyRepository) ListAll(ctx context.Context) ([]*AuthorizedKeyRow, error) {
	rows, err := r.client.QueryContext(ctx, `SELECT `+authorizedKeyColumns+` FROM authorized_keys ORDER BY authorized_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list authorized keys: %w", err)
	}
	defer rows.Close()

	var result []*AuthorizedKeyRow
	for rows.Next() {
		row, err := scanAuthorizedKeyRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan authorized key: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// WasAuthorizedAt reports whether publicKey was an active (non-revoked)
// signer at instant t: authorized_at <= t and (not revoked, or revoked
// strictly after t). This backs the chain validator's historical
// authorization check (spec.md §4.4).
func (r *AuthorizedKeyRepository) WasAuthorizedAt(ctx context.Context, publicKey string, t time.Time) (bool, error) {
	query := `
		SELECT COUNT(*) FROM authorized_keys
		WHERE public_key = $1 AND authorized_at <= $2 AND (revoked_at IS NULL OR revoked_at > $2)`

	var count int
	if err := r.client.QueryRowContext(ctx, query, publicKey, t).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check historical authorization: %w", err)
	}
	return count > 0, nil
}

// Revoke marks a key revoked within tx. Revocation is a soft delete: the
// row stays for historical authorization lookups (spec.md §4.5).
func (r *AuthorizedKeyRepository) Revoke(ctx context.Context, tx *Tx, publicKey string, revokedAt time.Time, revokedBy string) error {
	query := `UPDATE authorized_keys SET revoked_at = $1, revoked_by = $2 WHERE public_key = $3`
	res, err := tx.ExecContext(ctx, query, revokedAt, revokedBy, publicKey)
	if err != nil {
		return fmt.Errorf("failed to revoke key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm revocation: %w", err)
	}
	if n == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// DeleteByPublicKey permanently removes a key row within tx. Used only by
// the authorized-force-delete path of the three-level deletion API
// (spec.md §4.5), after admin-signature verification.
func (r *AuthorizedKeyRepository) DeleteByPublicKey(ctx context.Context, tx *Tx, publicKey string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM authorized_keys WHERE public_key = $1`, publicKey)
	if err != nil {
		return fmt.Errorf("failed to delete authorized key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm key deletion: %w", err)
	}
	if n == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// CountBlocksSigned returns how many blocks reference publicKey as signer
// or recipient, used by the key deletion impact analysis (spec.md §4.5).
func (r *AuthorizedKeyRepository) CountBlocksSigned(ctx context.Context, publicKey string) (int64, error) {
	query := `SELECT COUNT(*) FROM blocks WHERE signer_public_key = $1 OR recipient_public_key = $1`
	var count int64
	if err := r.client.QueryRowContext(ctx, query, publicKey).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count blocks for key: %w", err)
	}
	return count, nil
}

// DeleteAll removes every authorized key row within tx, used only by
// pkg/bundle's replace-mode import to reset the registry before loading a
// bundle's own key set.
func (r *AuthorizedKeyRepository) DeleteAll(ctx context.Context, tx *Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM authorized_keys`); err != nil {
		return fmt.Errorf("failed to delete all authorized keys: %w", err)
	}
	return nil
}
