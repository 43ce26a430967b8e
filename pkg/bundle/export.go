// Copyright 2025 Ledgercore Contributors
//
// Export serializes the entire chain, key registry, and audit trail to a
// bundle directory, copying every referenced off-chain file into
// off-chain-backup/ verbatim (spec.md §4.6). Export takes no lock of its
// own beyond what the underlying repositories already serialize through
// individual queries; a concurrent Append mid-export can at worst produce
// a bundle missing the very last block, never a torn one, since each
// block row is read in full.

package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tamperledger/ledgercore/pkg/database"
	"github.com/tamperledger/ledgercore/pkg/ledger"
)

// Exporter builds export bundles from one engine's catalog, off-chain
// store, and key registry.
type Exporter struct {
	engine *ledger.Engine
}

// NewExporter creates an Exporter over engine.
func NewExporter(engine *ledger.Engine) *Exporter {
	return &Exporter{engine: engine}
}

// Export writes a complete bundle to destDir, creating it if necessary.
// destDir must be empty or not yet exist; Export never overwrites an
// existing bundle in place.
func (x *Exporter) Export(ctx context.Context, destDir string) (*ExportMetadata, error) {
	if entries, err := os.ReadDir(destDir); err == nil && len(entries) > 0 {
		return nil, fmt.Errorf("export destination %s is not empty", destDir)
	}
	if err := os.MkdirAll(destDir, 0700); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	backupDir := filepath.Join(destDir, offChainBackupDirName)
	if err := os.MkdirAll(backupDir, 0700); err != nil {
		return nil, fmt.Errorf("create off-chain backup directory: %w", err)
	}

	repos := x.engine.Repositories()

	keyRows, err := repos.AuthorizedKeys.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list authorized keys: %w", err)
	}
	auditRows, err := repos.Audit.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}

	b := &Bundle{
		AuthorizedKeys: make([]ExportedKey, 0, len(keyRows)),
		AuditRecords:   make([]ExportedAuditRecord, 0, len(auditRows)),
	}
	for _, row := range keyRows {
		b.AuthorizedKeys = append(b.AuthorizedKeys, exportKeyRow(row))
	}
	for _, row := range auditRows {
		b.AuditRecords = append(b.AuditRecords, exportAuditRow(row))
	}

	var blockCount int64
	err = repos.Blocks.StreamPages(ctx, 1000, func(page []*database.BlockRow) error {
		for _, row := range page {
			exported, err := x.exportBlockRow(ctx, row, backupDir)
			if err != nil {
				return err
			}
			b.Blocks = append(b.Blocks, exported)
			blockCount++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.Metadata = ExportMetadata{
		ExportID:    uuid.NewString(),
		ExportedAt:  time.Now().UTC(),
		BlockCount:  blockCount,
		KeyCount:    len(b.AuthorizedKeys),
		FormatMajor: currentFormatMajor,
	}

	f, err := os.OpenFile(filepath.Join(destDir, bundleFileName), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("create bundle.json: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return nil, fmt.Errorf("write bundle.json: %w", err)
	}

	return &b.Metadata, nil
}

func (x *Exporter) exportBlockRow(ctx context.Context, row *database.BlockRow, backupDir string) (ExportedBlock, error) {
	eb := ExportedBlock{
		BlockNumber:        row.BlockNumber,
		PreviousHash:       row.PreviousHash.String,
		Hash:               row.Hash,
		Timestamp:          row.Timestamp,
		Data:               row.Data,
		Signature:          row.Signature,
		SignerPublicKey:    row.SignerPublicKey,
		RecipientPublicKey: row.RecipientPublicKey.String,
		ManualKeywords:     row.ManualKeywords.String,
		AutoKeywords:       row.AutoKeywords.String,
		SearchableContent:  row.SearchableContent.String,
		ContentCategory:    row.ContentCategory.String,
		IsEncrypted:        row.IsEncrypted,
		EncryptionMetadata: row.EncryptionMetadata.String,
	}
	if !row.OffChainDataID.Valid {
		return eb, nil
	}

	offRow, err := x.engine.Repositories().OffChainData.GetByID(ctx, row.OffChainDataID.String)
	if err != nil {
		return ExportedBlock{}, fmt.Errorf("look up off-chain data for block %d: %w", row.BlockNumber, err)
	}
	eb.OffChainFile = offRow.FilePath
	eb.OffChainDataHash = offRow.DataHash
	eb.OffChainSignature = offRow.Signature
	eb.OffChainSignerKey = offRow.SignerPublicKey
	eb.OffChainFileSize = offRow.FileSize
	eb.OffChainIV = offRow.EncryptionIV
	eb.OffChainSalt = offRow.EncryptionSalt
	eb.OffChainCreatedAt = offRow.CreatedAt

	srcPath, err := x.engine.Store().FullPath(offRow.FilePath)
	if err != nil {
		return ExportedBlock{}, fmt.Errorf("resolve off-chain file for block %d: %w", row.BlockNumber, err)
	}
	if err := copyFile(srcPath, filepath.Join(backupDir, offRow.FilePath)); err != nil {
		return ExportedBlock{}, fmt.Errorf("back up off-chain file for block %d: %w", row.BlockNumber, err)
	}
	return eb, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func exportKeyRow(row *database.AuthorizedKeyRow) ExportedKey {
	k := ExportedKey{
		PublicKey:    row.PublicKey,
		OwnerName:    row.Label.String,
		IsAdmin:      row.IsAdmin,
		AuthorizedAt: row.AuthorizedAt,
		RevokedBy:    row.RevokedBy.String,
	}
	if row.RevokedAt.Valid {
		t := row.RevokedAt.Time
		k.RevokedAt = &t
	}
	return k
}

func exportAuditRow(row *database.AuditRecordRow) ExportedAuditRecord {
	return ExportedAuditRecord{
		ID:             row.ID,
		OccurredAt:     row.OccurredAt,
		Action:         row.Action,
		ActorPublicKey: row.ActorPublicKey.String,
		Target:         row.Target.String,
		Details:        row.Details.String,
	}
}
