// Copyright 2025 Ledgercore Contributors
//
// Import loads a bundle produced by Export, validating the entire chain
// in memory before any catalog or object-store mutation (spec.md §4.6's
// "validate before mutating" requirement): a malformed or tampered bundle
// is rejected with nothing touched. ImportMerge requires an empty target
// chain; ImportReplace first wipes the existing chain, key registry, and
// audit trail.

package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/tamperledger/ledgercore/pkg/database"
	"github.com/tamperledger/ledgercore/pkg/ledger"
	"github.com/tamperledger/ledgercore/pkg/signing"
)

// ImportMode selects how Import reconciles a bundle with an existing chain.
type ImportMode int

const (
	// ImportMerge refuses to import into a non-empty chain.
	ImportMerge ImportMode = iota
	// ImportReplace wipes the existing chain, keys, and audit trail first.
	ImportReplace
)

// ImportResult summarizes a completed import.
type ImportResult struct {
	BlocksImported int64
	KeysImported   int
	Validation     *ledger.ChainValidationResult
}

// Importer loads bundles into one engine's catalog and off-chain store.
type Importer struct {
	engine *ledger.Engine
}

// NewImporter creates an Importer over engine.
func NewImporter(engine *ledger.Engine) *Importer {
	return &Importer{engine: engine}
}

// Import reads and validates the bundle at srcDir, then loads it.
func (im *Importer) Import(ctx context.Context, srcDir string, mode ImportMode) (*ImportResult, error) {
	b, err := readBundle(srcDir)
	if err != nil {
		return nil, err
	}
	if b.Metadata.FormatMajor != currentFormatMajor {
		return nil, fmt.Errorf("bundle format version %d is not supported (expected %d)", b.Metadata.FormatMajor, currentFormatMajor)
	}
	if err := validateBundle(b, filepath.Join(srcDir, offChainBackupDirName)); err != nil {
		return nil, fmt.Errorf("bundle failed validation, nothing was imported: %w", err)
	}

	if mode == ImportMerge {
		count, err := im.engine.Repositories().Blocks.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("check existing chain before merge import: %w", err)
		}
		if count > 0 {
			return nil, fmt.Errorf("merge import requires an empty chain; %d blocks already exist", count)
		}
	} else {
		if _, err := im.engine.Clear(ctx); err != nil {
			return nil, fmt.Errorf("clear existing chain before replace import: %w", err)
		}
		if err := im.clearKeysAndAudit(ctx); err != nil {
			return nil, err
		}
	}

	if err := im.loadKeys(ctx, b.AuthorizedKeys); err != nil {
		return nil, err
	}
	if err := im.loadAudit(ctx, b.AuditRecords); err != nil {
		return nil, err
	}
	if err := im.loadBlocks(ctx, b.Blocks, filepath.Join(srcDir, offChainBackupDirName)); err != nil {
		return nil, err
	}

	result := &ImportResult{BlocksImported: int64(len(b.Blocks)), KeysImported: len(b.AuthorizedKeys)}
	if validation, err := im.engine.ValidateChainDetailed(ctx, ledger.ValidationFull); err == nil {
		result.Validation = validation
	}
	return result, nil
}

func readBundle(srcDir string) (*Bundle, error) {
	f, err := os.Open(filepath.Join(srcDir, bundleFileName))
	if err != nil {
		return nil, fmt.Errorf("open bundle.json: %w", err)
	}
	defer f.Close()

	var b Bundle
	if err := json.NewDecoder(f).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode bundle.json: %w", err)
	}
	return &b, nil
}

// validateBundle re-derives each block's canonical hash and signature and
// checks the previousHash chain, entirely in memory, before anything is
// written. Off-chain blocks are checked for the presence and size of their
// backup file; full ciphertext/plaintext-hash verification happens after
// load via ValidateChainDetailed(ValidationFull), since that requires the
// files to already be in the store's managed directory.
func validateBundle(b *Bundle, backupDir string) error {
	var prevHash string
	for i, eb := range b.Blocks {
		bl := &ledger.Block{
			BlockNumber:        eb.BlockNumber,
			PreviousHash:       eb.PreviousHash,
			Hash:               eb.Hash,
			Timestamp:          eb.Timestamp,
			Data:               eb.Data,
			Signature:          eb.Signature,
			SignerPublicKey:    eb.SignerPublicKey,
			RecipientPublicKey: eb.RecipientPublicKey,
		}
		if !bl.VerifyHash() {
			return fmt.Errorf("block %d: hash does not match canonical encoding", eb.BlockNumber)
		}
		if i == 0 {
			if eb.BlockNumber != 0 {
				return fmt.Errorf("bundle does not start at block 0")
			}
		} else {
			if eb.PreviousHash != prevHash {
				return fmt.Errorf("block %d: previousHash does not match block %d's hash", eb.BlockNumber, eb.BlockNumber-1)
			}
			ok, err := signing.Verify(eb.SignerPublicKey, []byte(eb.Hash), eb.Signature)
			if err != nil || !ok {
				return fmt.Errorf("block %d: signature does not verify", eb.BlockNumber)
			}
		}
		prevHash = eb.Hash

		if eb.OffChainFile != "" {
			fi, err := os.Stat(filepath.Join(backupDir, eb.OffChainFile))
			if err != nil {
				return fmt.Errorf("block %d: off-chain backup file %s missing: %w", eb.BlockNumber, eb.OffChainFile, err)
			}
			// The backup holds the store's framed ciphertext: one frame per
			// full 8192-byte chunk plus a final short (possibly empty) frame,
			// each adding a 4-byte length prefix and a 16-byte GCM tag to the
			// plaintext size recorded in OffChainFileSize.
			frames := eb.OffChainFileSize/8192 + 1
			if fi.Size() != eb.OffChainFileSize+frames*(4+16) {
				return fmt.Errorf("block %d: off-chain backup file %s size mismatch", eb.BlockNumber, eb.OffChainFile)
			}
		}
	}
	return nil
}

func (im *Importer) clearKeysAndAudit(ctx context.Context) error {
	tx, err := im.engine.Client().BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin key/audit reset transaction: %w", err)
	}
	defer tx.Rollback()

	if err := im.engine.Repositories().AuthorizedKeys.DeleteAll(ctx, tx); err != nil {
		return fmt.Errorf("clear authorized keys: %w", err)
	}
	if err := im.engine.Repositories().Audit.DeleteAll(ctx, tx); err != nil {
		return fmt.Errorf("clear audit trail: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit key/audit reset: %w", err)
	}
	return nil
}

func (im *Importer) loadKeys(ctx context.Context, keys []ExportedKey) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := im.engine.Client().BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin key import transaction: %w", err)
	}
	defer tx.Rollback()

	for _, k := range keys {
		row := &database.AuthorizedKeyRow{
			PublicKey:    k.PublicKey,
			AuthorizedAt: k.AuthorizedAt,
			IsAdmin:      k.IsAdmin,
		}
		row.Label.String, row.Label.Valid = k.OwnerName, k.OwnerName != ""
		if k.RevokedAt != nil {
			row.RevokedAt.Time, row.RevokedAt.Valid = *k.RevokedAt, true
			row.RevokedBy.String, row.RevokedBy.Valid = k.RevokedBy, k.RevokedBy != ""
		}
		if err := im.engine.Repositories().AuthorizedKeys.Insert(ctx, tx, row); err != nil {
			return fmt.Errorf("import key %s: %w", k.PublicKey, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit key import: %w", err)
	}
	return nil
}

func (im *Importer) loadAudit(ctx context.Context, records []ExportedAuditRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := im.engine.Client().BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin audit import transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		row := &database.AuditRecordRow{ID: r.ID, OccurredAt: r.OccurredAt, Action: r.Action}
		row.ActorPublicKey.String, row.ActorPublicKey.Valid = r.ActorPublicKey, r.ActorPublicKey != ""
		row.Target.String, row.Target.Valid = r.Target, r.Target != ""
		row.Details.String, row.Details.Valid = r.Details, r.Details != ""
		if err := im.engine.Repositories().Audit.Insert(ctx, tx, row); err != nil {
			return fmt.Errorf("import audit record %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit import: %w", err)
	}
	return nil
}

func (im *Importer) loadBlocks(ctx context.Context, blocks []ExportedBlock, backupDir string) error {
	for _, eb := range blocks {
		if eb.OffChainFile != "" {
			dst, err := im.engine.Store().FullPath(eb.OffChainFile)
			if err != nil {
				return fmt.Errorf("resolve off-chain destination for block %d: %w", eb.BlockNumber, err)
			}
			if err := copyFile(filepath.Join(backupDir, eb.OffChainFile), dst); err != nil {
				return fmt.Errorf("restore off-chain file for block %d: %w", eb.BlockNumber, err)
			}
		}

		tx, err := im.engine.Client().BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("begin block import transaction: %w", err)
		}

		var offChainDataID string
		if eb.OffChainFile != "" {
			offChainDataID = uuid.NewString()
			offRow := &database.OffChainDataRow{
				ID:              offChainDataID,
				DataHash:        eb.OffChainDataHash,
				Signature:       eb.OffChainSignature,
				SignerPublicKey: eb.OffChainSignerKey,
				FilePath:        eb.OffChainFile,
				FileSize:        eb.OffChainFileSize,
				EncryptionIV:    eb.OffChainIV,
				EncryptionSalt:  eb.OffChainSalt,
				CreatedAt:       eb.OffChainCreatedAt,
			}
			if err := im.engine.Repositories().OffChainData.Insert(ctx, tx, offRow); err != nil {
				tx.Rollback()
				return fmt.Errorf("import off-chain metadata for block %d: %w", eb.BlockNumber, err)
			}
		}

		row := &database.BlockRow{
			BlockNumber:     eb.BlockNumber,
			Hash:            eb.Hash,
			Data:            eb.Data,
			Signature:       eb.Signature,
			SignerPublicKey: eb.SignerPublicKey,
			IsEncrypted:     eb.IsEncrypted,
			Timestamp:       eb.Timestamp,
			CreatedAt:       eb.Timestamp,
		}
		row.PreviousHash.String, row.PreviousHash.Valid = eb.PreviousHash, eb.PreviousHash != ""
		row.RecipientPublicKey.String, row.RecipientPublicKey.Valid = eb.RecipientPublicKey, eb.RecipientPublicKey != ""
		row.ContentCategory.String, row.ContentCategory.Valid = eb.ContentCategory, eb.ContentCategory != ""
		row.ManualKeywords.String, row.ManualKeywords.Valid = eb.ManualKeywords, eb.ManualKeywords != ""
		row.AutoKeywords.String, row.AutoKeywords.Valid = eb.AutoKeywords, eb.AutoKeywords != ""
		row.SearchableContent.String, row.SearchableContent.Valid = eb.SearchableContent, eb.SearchableContent != ""
		row.EncryptionMetadata.String, row.EncryptionMetadata.Valid = eb.EncryptionMetadata, eb.EncryptionMetadata != ""
		row.OffChainDataID.String, row.OffChainDataID.Valid = offChainDataID, offChainDataID != ""

		if err := im.engine.Repositories().Blocks.InsertBlock(ctx, tx, row); err != nil {
			tx.Rollback()
			return fmt.Errorf("import block %d: %w", eb.BlockNumber, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit block %d import: %w", eb.BlockNumber, err)
		}
	}
	return nil
}
