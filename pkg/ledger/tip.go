// Copyright 2025 Ledgercore Contributors
//
// Tip resolution (spec.md §4.1) and the Block <-> database.BlockRow mapping
// every write path shares. The tip is always resolved through the active
// transaction's bound handle (database.BlockRepository.TipWithinTx), never
// through a fresh connection, so a multi-step write sees its own
// uncommitted tip (spec.md §4.7, the v1.0.6 regression this design fixes).

package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/tamperledger/ledgercore/pkg/database"
)

// tip describes the chain's current highest block, or the conceptual
// genesis sentinel (blockNumber -1, hash "0") when the chain is empty.
type tip struct {
	blockNumber int64
	hash        string
	timestamp   time.Time
}

func sentinelTip() tip {
	return tip{blockNumber: -1, hash: GenesisPreviousHash, timestamp: time.Time{}}
}

// resolveTip returns the tip visible inside tx, per spec.md §4.1.
func (e *Engine) resolveTip(ctx context.Context, tx *database.Tx) (tip, error) {
	row, err := e.repos.Blocks.TipWithinTx(ctx, tx)
	if err != nil {
		return tip{}, newError(KindIOError, err, "resolve chain tip")
	}
	if row == nil {
		return sentinelTip(), nil
	}
	return tip{blockNumber: row.BlockNumber, hash: row.Hash, timestamp: row.Timestamp}, nil
}

// toRow converts a domain Block into its catalog row representation.
func toRow(b *Block) *database.BlockRow {
	row := &database.BlockRow{
		BlockNumber:     b.BlockNumber,
		Hash:            b.Hash,
		Data:            b.Data,
		Signature:       b.Signature,
		SignerPublicKey: b.SignerPublicKey,
		IsEncrypted:     b.IsEncrypted,
		Timestamp:       b.Timestamp,
		CreatedAt:       b.Timestamp,
	}
	row.PreviousHash = sql.NullString{String: b.PreviousHash, Valid: b.PreviousHash != ""}
	row.RecipientPublicKey = sql.NullString{String: b.RecipientPublicKey, Valid: b.RecipientPublicKey != ""}
	row.ContentCategory = sql.NullString{String: b.ContentCategory, Valid: b.ContentCategory != ""}
	row.ManualKeywords = sql.NullString{String: b.ManualKeywords, Valid: b.ManualKeywords != ""}
	row.AutoKeywords = sql.NullString{String: b.AutoKeywords, Valid: b.AutoKeywords != ""}
	row.SearchableContent = sql.NullString{String: b.SearchableContent, Valid: b.SearchableContent != ""}
	row.EncryptionMetadata = sql.NullString{String: b.EncryptionMetadata, Valid: b.EncryptionMetadata != ""}
	row.OffChainDataID = sql.NullString{String: b.OffChainDataID, Valid: b.OffChainDataID != ""}
	return row
}

// fromRow converts a catalog row back into a domain Block.
func fromRow(row *database.BlockRow) *Block {
	return &Block{
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
		OffChainDataID:     row.OffChainDataID.String,
	}
}
