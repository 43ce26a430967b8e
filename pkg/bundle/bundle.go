// Copyright 2025 Ledgercore Contributors
//
// Package bundle implements export/import snapshotting and off-chain
// orphan-file reconciliation across the catalog and object stores
// (spec.md §4.6). A bundle is a directory containing bundle.json (the
// chain, authorized keys, and audit trail as JSON) plus an
// off-chain-backup/ subdirectory holding a raw copy of every off-chain
// file a block references — the encrypted bytes are copied as-is, never
// decrypted and re-encrypted, so export never needs any signer's key.

package bundle

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/tamperledger/ledgercore/pkg/ledger"
)

const bundleFileName = "bundle.json"
const offChainBackupDirName = "off-chain-backup"

// ExportMetadata describes one export snapshot.
type ExportMetadata struct {
	ExportID    string    `json:"exportId"`
	ExportedAt  time.Time `json:"exportedAt"`
	BlockCount  int64     `json:"blockCount"`
	KeyCount    int       `json:"keyCount"`
	FormatMajor int       `json:"formatMajor"`
}

// ExportedBlock is the JSON wire shape of one block in a bundle. It
// mirrors ledger.Block field-for-field rather than reusing the type
// directly, so the bundle's on-disk format does not silently change if
// ledger.Block grows an internal-only field.
type ExportedBlock struct {
	BlockNumber        int64     `json:"blockNumber"`
	PreviousHash       string    `json:"previousHash"`
	Hash               string    `json:"hash"`
	Timestamp          time.Time `json:"timestamp"`
	Data               string    `json:"data"`
	Signature          string    `json:"signature"`
	SignerPublicKey    string    `json:"signerPublicKey"`
	RecipientPublicKey string    `json:"recipientPublicKey,omitempty"`
	ManualKeywords     string    `json:"manualKeywords,omitempty"`
	AutoKeywords       string    `json:"autoKeywords,omitempty"`
	SearchableContent  string    `json:"searchableContent,omitempty"`
	ContentCategory    string    `json:"contentCategory,omitempty"`
	IsEncrypted        bool      `json:"isEncrypted"`
	EncryptionMetadata string    `json:"encryptionMetadata,omitempty"`
	OffChainFile       string    `json:"offChainFile,omitempty"`
	OffChainDataHash   string    `json:"offChainDataHash,omitempty"`
	OffChainSignature  string    `json:"offChainSignature,omitempty"`
	OffChainSignerKey  string    `json:"offChainSignerKey,omitempty"`
	OffChainFileSize   int64     `json:"offChainFileSize,omitempty"`
	OffChainIV         string    `json:"offChainIV,omitempty"`
	OffChainSalt       string    `json:"offChainSalt,omitempty"`
	OffChainCreatedAt  time.Time `json:"offChainCreatedAt,omitempty"`
}

// ExportedKey is the JSON wire shape of one authorized key.
type ExportedKey struct {
	PublicKey    string     `json:"publicKey"`
	OwnerName    string     `json:"ownerName,omitempty"`
	IsAdmin      bool       `json:"isAdmin"`
	AuthorizedAt time.Time  `json:"authorizedAt"`
	RevokedAt    *time.Time `json:"revokedAt,omitempty"`
	RevokedBy    string     `json:"revokedBy,omitempty"`
}

// ExportedAuditRecord is the JSON wire shape of one audit log entry.
type ExportedAuditRecord struct {
	ID             string    `json:"id"`
	OccurredAt     time.Time `json:"occurredAt"`
	Action         string    `json:"action"`
	ActorPublicKey string    `json:"actorPublicKey,omitempty"`
	Target         string    `json:"target,omitempty"`
	Details        string    `json:"details,omitempty"`
}

// Bundle is the full contents of one export snapshot.
type Bundle struct {
	Metadata       ExportMetadata        `json:"metadata"`
	AuthorizedKeys []ExportedKey         `json:"authorizedKeys"`
	Blocks         []ExportedBlock       `json:"blocks"`
	AuditRecords   []ExportedAuditRecord `json:"auditRecords,omitempty"`
}

const currentFormatMajor = 1

// EmergencySnapshotter returns a ledger.EmergencySnapshot callback that
// exports engine's current state to a fresh timestamped subdirectory of
// backupRoot. Wire it into keyregistry.WithEmergencySnapshot so an
// authorized force-delete always takes a snapshot first (spec.md §4.5).
func EmergencySnapshotter(engine *ledger.Engine, backupRoot string) ledger.EmergencySnapshot {
	exporter := NewExporter(engine)
	return func(ctx context.Context) error {
		dest := filepath.Join(backupRoot, fmt.Sprintf("emergency-%d", time.Now().UTC().UnixNano()))
		_, err := exporter.Export(ctx, dest)
		return err
	}
}
