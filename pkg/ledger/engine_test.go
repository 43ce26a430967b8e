// Copyright 2025 Ledgercore Contributors

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/tamperledger/ledgercore/pkg/config"
	"github.com/tamperledger/ledgercore/pkg/database"
	"github.com/tamperledger/ledgercore/pkg/keyregistry"
	"github.com/tamperledger/ledgercore/pkg/objectstore"
	"github.com/tamperledger/ledgercore/pkg/signing"
)

// newTestEngine wires an Engine over an in-memory SQLite catalog and a
// temp-dir object store, mirroring pkg/database's newTestClient helper.
func newTestEngine(t *testing.T) (*Engine, *database.Client) {
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
		OffChainThresholdBytes: 64,
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

	store, err := objectstore.New(cfg.OffChainDir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	registry := keyregistry.New(client)
	engine := New(client, store, registry, cfg.OffChainThresholdBytes, cfg.InlineCharCeiling)
	return engine, client
}

// newTestSigner generates a fresh ECDSA-P256 signer and registers it as an
// admin key, ready to append blocks.
func newTestSigner(t *testing.T, e *Engine) signing.Signer {
	t.Helper()
	signer, err := signing.GenerateECDSAP256()
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	if err := e.Registry().Register(context.Background(), signer.PublicKeyText(), "test-signer", keyregistry.RoleAdmin, "test-harness"); err != nil {
		t.Fatalf("register signer: %v", err)
	}
	return signer
}
