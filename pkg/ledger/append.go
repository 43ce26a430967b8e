// Copyright 2025 Ledgercore Contributors
//
// The append algorithm (spec.md §4.2): authorization, tip resolution,
// sizing decision, optional inline encryption, off-chain spill, canonical
// hash + signature, and persistence, all inside one writer-lock-held
// transaction. Edge-case policies (§4.2) are enforced before any write.

package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tamperledger/ledgercore/pkg/database"
	"github.com/tamperledger/ledgercore/pkg/signing"
)

// disposition is the sizing decision from spec.md §4.2 step 3.
type disposition int

const (
	dispositionOnChain disposition = iota
	dispositionOffChain
)

// AppendOptions carries the optional fields of an append call (spec.md
// §4.2's public contract).
type AppendOptions struct {
	RecipientPublicKey string
	ManualKeywords     string
	AutoKeywords       string
	ContentCategory    string
	ContentType        string // off-chain MIME type hint; ignored for inline blocks
	Password           string // when set, the inline payload is encrypted (§4.2 step 4)
}

func (o AppendOptions) validate() error {
	if len(o.ManualKeywords) > MaxManualKeywordsLen {
		return newError(KindInvalidInput, nil, "manualKeywords exceeds %d characters", MaxManualKeywordsLen)
	}
	if len(o.AutoKeywords) > MaxAutoKeywordsLen {
		return newError(KindInvalidInput, nil, "autoKeywords exceeds %d characters", MaxAutoKeywordsLen)
	}
	if len(o.ContentCategory) > MaxContentCategoryLen {
		return newError(KindInvalidInput, nil, "contentCategory exceeds %d characters", MaxContentCategoryLen)
	}
	if len(o.ContentType) > MaxContentTypeLen {
		return newError(KindInvalidInput, nil, "contentType exceeds %d characters", MaxContentTypeLen)
	}
	searchable := deriveSearchableContent(o.ManualKeywords, o.AutoKeywords)
	if len(searchable) > MaxSearchableContentLen {
		return newError(KindInvalidInput, nil, "searchableContent (manual+auto keywords) exceeds %d characters", MaxSearchableContentLen)
	}
	return nil
}

// deriveSearchableContent implements spec.md §4.2's derivation:
// manual + " " + auto, collapsing to the non-empty side when only one is set.
func deriveSearchableContent(manual, auto string) string {
	switch {
	case manual == "":
		return auto
	case auto == "":
		return manual
	default:
		return manual + " " + auto
	}
}

// determineStorage implements spec.md §4.2 step 3's sizing decision.
func (e *Engine) determineStorage(data []byte) (disposition, error) {
	if data == nil {
		return dispositionOnChain, newError(KindInvalidInput, nil, "data must not be nil")
	}
	byteLen := len(data)
	if byteLen > defaultMaxPayloadBytes {
		return dispositionOnChain, newError(KindInvalidInput, nil, "payload of %d bytes exceeds the 100 MiB ceiling", byteLen)
	}
	if byteLen >= e.offChainThresholdBytes {
		return dispositionOffChain, nil
	}
	return dispositionOnChain, nil
}

// Append persists a new block, spilling the payload off-chain when it
// reaches or exceeds the configured threshold, inside the writer lock (spec.md §4.2).
func (e *Engine) Append(ctx context.Context, data []byte, signer signing.Signer, opts AppendOptions) (*Block, error) {
	if signer == nil {
		return nil, newError(KindInvalidInput, nil, "signer must not be nil")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	disposition, err := e.determineStorage(data)
	if err != nil {
		return nil, err
	}

	e.writer.Lock()
	defer e.writer.Unlock()

	signerPub := signer.PublicKeyText()
	authorized, err := e.registry.IsAuthorizedNow(ctx, signerPub)
	if err != nil {
		return nil, newError(KindIOError, err, "check signer authorization")
	}
	if !authorized {
		return nil, newError(KindAuthorizationDenied, nil, "signer %s is not an active authorized key", signerPub)
	}

	tx, err := e.client.BeginTx(ctx)
	if err != nil {
		return nil, newError(KindIOError, err, "begin append transaction")
	}
	committed := false
	var spilledFile string
	defer func() {
		if !committed {
			tx.Rollback()
			if spilledFile != "" {
				if rmErr := e.store.DeleteByName(spilledFile); rmErr != nil {
					e.logger.Printf("cleanup after failed append: delete off-chain file %s: %v", spilledFile, rmErr)
				}
			}
		}
	}()

	t, err := e.resolveTip(ctx, tx)
	if err != nil {
		return nil, err
	}
	if t.blockNumber == -1 {
		genesis := buildGenesisBlock(e.now())
		if err := e.repos.Blocks.InsertBlock(ctx, tx, toRow(genesis)); err != nil {
			return nil, newError(KindIOError, err, "insert genesis block")
		}
		t = tip{blockNumber: genesis.BlockNumber, hash: genesis.Hash, timestamp: genesis.Timestamp}
	}

	if t.blockNumber == math.MaxInt64 {
		return nil, newError(KindOverflow, nil, "block number has reached INT64_MAX")
	}
	nextNumber := t.blockNumber + 1

	now := e.now()
	if now.Before(t.timestamp) {
		now = t.timestamp // I6: monotone-non-decreasing
	}

	block := &Block{
		BlockNumber:        nextNumber,
		PreviousHash:       t.hash,
		Timestamp:          now,
		SignerPublicKey:    signerPub,
		RecipientPublicKey: opts.RecipientPublicKey,
		ManualKeywords:     opts.ManualKeywords,
		AutoKeywords:       opts.AutoKeywords,
		ContentCategory:    opts.ContentCategory,
		SearchableContent:  deriveSearchableContent(opts.ManualKeywords, opts.AutoKeywords),
	}

	switch disposition {
	case dispositionOffChain:
		meta, err := e.store.Write(bytes.NewReader(data), nextNumber, signerPub, opts.ContentType, signer)
		if err != nil {
			return nil, newError(KindIOError, err, "write off-chain payload")
		}
		spilledFile = meta.FilePath

		offChainRow := &database.OffChainDataRow{
			ID:              uuid.NewString(),
			DataHash:        meta.DataHash,
			Signature:       meta.Signature,
			SignerPublicKey: meta.SignerPublicKey,
			FilePath:        meta.FilePath,
			FileSize:        meta.FileSize,
			EncryptionIV:    meta.EncryptionIV,
			EncryptionSalt:  meta.EncryptionSalt,
			CreatedAt:       meta.CreatedAt,
		}
		if meta.ContentType != "" {
			offChainRow.ContentType.String, offChainRow.ContentType.Valid = meta.ContentType, true
		}
		if err := e.repos.OffChainData.Insert(ctx, tx, offChainRow); err != nil {
			return nil, newError(KindIOError, err, "persist off-chain metadata")
		}
		block.Data = OffChainRefPrefix + meta.DataHash
		block.OffChainDataID = offChainRow.ID

	default: // dispositionOnChain
		if utf8.RuneCountInString(string(data)) > e.inlineCharCeiling {
			return nil, newError(KindInvalidInput, nil, "inline payload exceeds %d character ceiling", e.inlineCharCeiling)
		}
		if opts.Password != "" {
			envelope, err := encryptInline(data, opts.Password, now)
			if err != nil {
				return nil, newError(KindIOError, err, "encrypt inline payload")
			}
			block.IsEncrypted = true
			block.EncryptionMetadata = envelope
			block.Data = inlineEncryptedPlaceholder
		} else {
			block.Data = string(data)
		}
	}

	block.Hash = block.ComputeHash()
	signature, err := signer.Sign([]byte(block.Hash))
	if err != nil {
		return nil, newError(KindIOError, err, "sign block hash")
	}
	block.Signature = signature

	if err := e.repos.Blocks.InsertBlock(ctx, tx, toRow(block)); err != nil {
		if errors.Is(err, database.ErrDuplicateBlockNumber) {
			return nil, newError(KindConstraintViolation, err, "block number %d already exists", nextNumber)
		}
		return nil, newError(KindIOError, err, "insert block")
	}

	if err := tx.Commit(); err != nil {
		return nil, newError(KindIOError, err, "commit append")
	}
	committed = true
	return block, nil
}

// DecryptInlinePayload reverses the optional inline encryption of step 4
// for a block appended with a password, verifying the envelope's carried
// plaintext hash.
func DecryptInlinePayload(block *Block, password string) ([]byte, error) {
	if !block.IsEncrypted {
		return nil, fmt.Errorf("block %d is not encrypted", block.BlockNumber)
	}
	plaintext, err := decryptInline(block.EncryptionMetadata, password)
	if err != nil {
		return nil, &Error{Kind: KindIntegrityCheckFailed, Message: err.Error()}
	}
	return plaintext, nil
}
