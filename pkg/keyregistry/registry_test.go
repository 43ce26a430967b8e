// Copyright 2025 Ledgercore Contributors

package keyregistry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tamperledger/ledgercore/pkg/config"
	"github.com/tamperledger/ledgercore/pkg/database"
	"github.com/tamperledger/ledgercore/pkg/signing"
)

// newTestClient opens an in-memory SQLite catalog and runs migrations,
// mirroring pkg/database's own test helper.
func newTestClient(t *testing.T) *database.Client {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Dialect:                config.DialectSqlite,
		DatabaseURL:            "file::memory:?cache=shared",
		PoolMinSize:            1,
		PoolMaxSize:            1,
		ConnectionTimeout:      5 * time.Second,
		IdleTimeout:            time.Minute,
		MaxLifetime:            time.Hour,
		SchemaMode:             config.SchemaUpdate,
		OffChainDir:            t.TempDir(),
		OffChainThresholdBytes: 524288,
		InlineCharCeiling:      10000,
	}
	client, err := database.NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	if err := client.MigrateUp(context.Background()); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	return client
}

func newTestKey(t *testing.T) signing.Signer {
	t.Helper()
	signer, err := signing.GenerateECDSAP256()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return signer
}

func TestRegisterAndTemporalAuthorization(t *testing.T) {
	client := newTestClient(t)
	r := New(client)
	ctx := context.Background()
	signer := newTestKey(t)

	before := time.Now().UTC().Add(-time.Minute)
	if err := r.Register(ctx, signer.PublicKeyText(), "alice", RoleUser, "admin"); err != nil {
		t.Fatalf("register: %v", err)
	}

	ok, err := r.WasAuthorizedAt(ctx, signer.PublicKeyText(), before)
	if err != nil {
		t.Fatalf("was authorized at: %v", err)
	}
	if ok {
		t.Fatal("expected key to be unauthorized before it was registered")
	}

	ok, err = r.IsAuthorizedNow(ctx, signer.PublicKeyText())
	if err != nil {
		t.Fatalf("is authorized now: %v", err)
	}
	if !ok {
		t.Fatal("expected freshly registered key to be authorized now")
	}
}

func TestRegisterRejectsOversizedOwnerName(t *testing.T) {
	client := newTestClient(t)
	r := New(client)
	signer := newTestKey(t)

	err := r.Register(context.Background(), signer.PublicKeyText(), strings.Repeat("a", 101), RoleUser, "admin")
	if err == nil {
		t.Fatal("expected oversized ownerName to be rejected")
	}
	var kerr *Error
	if e, ok := err.(*Error); ok {
		kerr = e
	}
	if kerr == nil || kerr.Kind != KindInvalidInput {
		t.Fatalf("expected KindInvalidInput, got %v", err)
	}
}

func TestRegisterRejectsMalformedPublicKey(t *testing.T) {
	client := newTestClient(t)
	r := New(client)

	err := r.Register(context.Background(), "not-a-real-key", "bob", RoleUser, "admin")
	if err == nil {
		t.Fatal("expected malformed public key to be rejected")
	}
}

func TestRevokePreservesHistoricalAuthorization(t *testing.T) {
	client := newTestClient(t)
	r := New(client)
	ctx := context.Background()
	signer := newTestKey(t)

	if err := r.Register(ctx, signer.PublicKeyText(), "carol", RoleUser, "admin"); err != nil {
		t.Fatalf("register: %v", err)
	}
	mid := time.Now().UTC()

	if err := r.Revoke(ctx, signer.PublicKeyText(), "admin"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	ok, err := r.WasAuthorizedAt(ctx, signer.PublicKeyText(), mid)
	if err != nil {
		t.Fatalf("was authorized at: %v", err)
	}
	if !ok {
		t.Fatal("expected authorization at a time before revocation to still hold")
	}

	ok, err = r.IsAuthorizedNow(ctx, signer.PublicKeyText())
	if err != nil {
		t.Fatalf("is authorized now: %v", err)
	}
	if ok {
		t.Fatal("expected revoked key to no longer be authorized now")
	}
}

func TestSafeDeleteRefusesWhenKeyIsReferenced(t *testing.T) {
	client := newTestClient(t)
	r := New(client)
	ctx := context.Background()
	signer := newTestKey(t)

	if err := r.Register(ctx, signer.PublicKeyText(), "dave", RoleUser, "admin"); err != nil {
		t.Fatalf("register: %v", err)
	}

	repo := database.NewBlockRepository(client)
	tx, err := client.BeginTx(ctx)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	row := &database.BlockRow{
		BlockNumber:     0,
		Hash:            "h",
		Data:            "",
		Signature:       "s",
		SignerPublicKey: signer.PublicKeyText(),
		Timestamp:       time.Now().UTC(),
		CreatedAt:       time.Now().UTC(),
	}
	if err := repo.InsertBlock(ctx, tx, row); err != nil {
		t.Fatalf("insert block: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	impact, err := r.ImpactAnalysis(ctx, signer.PublicKeyText())
	if err != nil {
		t.Fatalf("impact analysis: %v", err)
	}
	if !impact.WouldOrphanChain || impact.BlocksSigned != 1 {
		t.Fatalf("expected impact analysis to report 1 referencing block, got %+v", impact)
	}

	err = r.SafeDelete(ctx, signer.PublicKeyText(), "admin")
	if err == nil {
		t.Fatal("expected safe delete to refuse a key referenced by a block")
	}
	if e, ok := err.(*Error); !ok || e.Kind != KindStateConflict {
		t.Fatalf("expected KindStateConflict, got %v", err)
	}
}

func TestAuthorizedForceDeleteRequiresValidAdminSignature(t *testing.T) {
	client := newTestClient(t)
	r := New(client)
	ctx := context.Background()

	admin := newTestKey(t)
	if err := r.Register(ctx, admin.PublicKeyText(), "admin", RoleAdmin, "bootstrap"); err != nil {
		t.Fatalf("register admin: %v", err)
	}
	target := newTestKey(t)
	if err := r.Register(ctx, target.PublicKeyText(), "target", RoleUser, "admin"); err != nil {
		t.Fatalf("register target: %v", err)
	}

	req := ForceDeleteRequest{
		TargetPublicKey: target.PublicKeyText(),
		Reason:          "compromised",
		Nonce:           "nonce-1",
		AdminPublicKey:  admin.PublicKeyText(),
		AdminSignature:  "not-a-real-signature",
	}
	err := r.AuthorizedForceDelete(ctx, req)
	if err == nil {
		t.Fatal("expected force delete with an invalid admin signature to fail")
	}
	if e, ok := err.(*Error); !ok || e.Kind != KindSecurityViolation {
		t.Fatalf("expected KindSecurityViolation, got %v", err)
	}

	keys, err := r.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected the registry to be unchanged after a rejected force delete, got %d keys", len(keys))
	}

	sig, err := admin.Sign([]byte(req.TargetPublicKey + "|" + req.Reason + "|" + req.Nonce))
	if err != nil {
		t.Fatalf("sign mandate: %v", err)
	}
	req.AdminSignature = sig
	if err := r.AuthorizedForceDelete(ctx, req); err != nil {
		t.Fatalf("expected force delete with a valid admin signature to succeed: %v", err)
	}

	keys, err = r.List(ctx)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected the target key to be gone after a successful force delete, got %d keys", len(keys))
	}
}
