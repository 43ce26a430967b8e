// Copyright 2025 Ledgercore Contributors
//
// Audit Record Repository - append-only log of key-registry mutations
// (spec.md §4.5's "every mutation is audited" requirement). Grounded on
// repository_attestation.go's insert/list shape.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AuditRecordRow is the catalog row shape for one audit log entry.
type AuditRecordRow struct {
	ID             string
	OccurredAt     time.Time
	Action         string
	ActorPublicKey sql.NullString
	Target         sql.NullString
	Details        sql.NullString
}

const auditColumns = `id, occurred_at, action, actor_public_key, target, details`

func scanAuditRow(scanner interface {
	Scan(dest ...interface{}) error
}) (*AuditRecordRow, error) {
	row := &AuditRecordRow{}
	err := scanner.Scan(&row.ID, &row.OccurredAt, &row.Action, &row.ActorPublicKey, &row.Target, &row.Details)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// AuditRepository handles audit log catalog operations.
type AuditRepository struct {
	client *Client
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(client *Client) *AuditRepository {
	return &AuditRepository{client: client}
}

// Insert appends an audit record within tx. Audit records are written in
// the same transaction as the mutation they describe, so a rollback of the
// mutation also rolls back its audit trail entry.
func (r *AuditRepository) Insert(ctx context.Context, tx *Tx, row *AuditRecordRow) error {
	query := `INSERT INTO audit_records (` + auditColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := tx.ExecContext(ctx, query, row.ID, row.OccurredAt, row.Action, row.ActorPublicKey, row.Target, row.Details)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// ListSince returns audit records at or after since, ordered ascending.
func (r *AuditRepository) ListSince(ctx context.Context, since time.Time) ([]*AuditRecordRow, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_records WHERE occurred_at >= $1 ORDER BY occurred_at ASC`
	rows, err := r.client.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var result []*AuditRecordRow
	for rows.Next() {
		row, err := scanAuditRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// ListAll returns every audit record, used by export.
func (r *AuditRepository) ListAll(ctx context.Context) ([]*AuditRecordRow, error) {
	rows, err := r.client.QueryContext(ctx, `SELECT `+auditColumns+` FROM audit_records ORDER BY occurred_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var result []*AuditRecordRow
	for rows.Next() {
		row, err := scanAuditRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// DeleteAll removes every audit record within tx, used only by pkg/bundle's
// replace-mode import to reset the audit trail before loading a bundle's
// own history.
func (r *AuditRepository) DeleteAll(ctx context.Context, tx *Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM audit_records`); err != nil {
		return fmt.Errorf("failed to delete all audit records: %w", err)
	}
	return nil
}
