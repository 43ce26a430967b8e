// Copyright 2025 Ledgercore Contributors
//
// Block is the chain's unit of record and its canonical hash encoding.
// The encoding is part of the on-disk format (spec.md §9's Open Question):
// length-prefixed UTF-8 fields rather than bare concatenation, so that
// e.g. data="ab"+signer="c" can never hash identically to data="a"+signer="bc".

package ledger

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/sha3"
)

// GenesisPreviousHash is the fixed sentinel previousHash for block 0.
const GenesisPreviousHash = "0000000000000000000000000000000000000000000000000000000000000000"

// OffChainRefPrefix marks a block's data field as an off-chain pointer,
// spec.md §3's `"OFF_CHAIN_REF:" + dataHash`.
const OffChainRefPrefix = "OFF_CHAIN_REF:"

// Block is one record in the linear chain.
type Block struct {
	BlockNumber         int64
	PreviousHash        string
	Hash                string
	Timestamp           time.Time
	Data                string
	Signature           string
	SignerPublicKey     string
	RecipientPublicKey  string // empty when unset; immutable once set
	ManualKeywords      string
	AutoKeywords        string
	SearchableContent   string
	ContentCategory     string
	IsEncrypted         bool
	EncryptionMetadata  string
	OffChainDataID      string // empty when the payload is inline
}

// Field length ceilings from spec.md §3 and §8 (P9).
const (
	MaxManualKeywordsLen    = 1024
	MaxAutoKeywordsLen      = 1024
	MaxSearchableContentLen = 2048
	MaxContentCategoryLen   = 50
	MaxOwnerNameLen         = 100
	MaxConfigKeyLen         = 255
	MaxConfigTypeLen        = 50
	MaxOperationLen         = 20
	MaxChangeReasonLen      = 500
	MaxContentTypeLen       = 100
)

// IsGenesis reports whether b is block 0.
func (b *Block) IsGenesis() bool {
	return b.BlockNumber == 0
}

// CanonicalBytes produces the exact byte sequence I2's SHA3-256 hash is
// computed over: a length-prefixed (uint32 big-endian) concatenation of
// blockNumber, previousHash, RFC3339Nano timestamp, data, signerPublicKey,
// and recipientPublicKey (empty string when absent).
func (b *Block) CanonicalBytes() []byte {
	var blockNumBuf [8]byte
	binary.BigEndian.PutUint64(blockNumBuf[:], uint64(b.BlockNumber))

	fields := [][]byte{
		blockNumBuf[:],
		[]byte(b.PreviousHash),
		[]byte(b.Timestamp.UTC().Format(time.RFC3339Nano)),
		[]byte(b.Data),
		[]byte(b.SignerPublicKey),
		[]byte(b.RecipientPublicKey),
	}

	var out []byte
	for _, f := range fields {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f)))
		out = append(out, lenBuf[:]...)
		out = append(out, f...)
	}
	return out
}

// ComputeHash returns the hex-encoded SHA3-256 hash over CanonicalBytes.
func (b *Block) ComputeHash() string {
	sum := sha3.Sum256(b.CanonicalBytes())
	return hex.EncodeToString(sum[:])
}

// VerifyHash reports whether b.Hash matches ComputeHash() (invariant I2).
func (b *Block) VerifyHash() bool {
	return b.Hash == b.ComputeHash()
}

// IsOffChain reports whether b's payload lives in the object store.
func (b *Block) IsOffChain() bool {
	return len(b.Data) >= len(OffChainRefPrefix) && b.Data[:len(OffChainRefPrefix)] == OffChainRefPrefix
}

// OffChainDataHash extracts the dataHash from an OFF_CHAIN_REF pointer,
// or "" if b is not an off-chain block.
func (b *Block) OffChainDataHash() string {
	if !b.IsOffChain() {
		return ""
	}
	return b.Data[len(OffChainRefPrefix):]
}
