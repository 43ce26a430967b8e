// Copyright 2025 Ledgercore Contributors

package bundle

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tamperledger/ledgercore/pkg/config"
	"github.com/tamperledger/ledgercore/pkg/database"
	"github.com/tamperledger/ledgercore/pkg/keyregistry"
	"github.com/tamperledger/ledgercore/pkg/ledger"
	"github.com/tamperledger/ledgercore/pkg/objectstore"
	"github.com/tamperledger/ledgercore/pkg/signing"
)

// newTestEngine wires an Engine over an in-memory SQLite catalog and a
// temp-dir object store, mirroring pkg/ledger's own test helper.
func newTestEngine(t *testing.T) *ledger.Engine {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Dialect:                config.DialectSqlite,
		DatabaseURL:            ":memory:",
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
	return ledger.New(client, store, registry, cfg.OffChainThresholdBytes, cfg.InlineCharCeiling)
}

func newTestSigner(t *testing.T, e *ledger.Engine) signing.Signer {
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

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestEngine(t)
	signer := newTestSigner(t, src)

	if _, err := src.Append(ctx, []byte("small"), signer, ledger.AppendOptions{}); err != nil {
		t.Fatalf("append small: %v", err)
	}
	large := make([]byte, 256)
	for i := range large {
		large[i] = byte('a' + i%26)
	}
	if _, err := src.Append(ctx, large, signer, ledger.AppendOptions{}); err != nil {
		t.Fatalf("append large: %v", err)
	}

	bundleDir := filepath.Join(t.TempDir(), "bundle")
	meta, err := NewExporter(src).Export(ctx, bundleDir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if meta.BlockCount != 3 { // genesis + 2
		t.Fatalf("expected 3 exported blocks, got %d", meta.BlockCount)
	}

	dst := newTestEngine(t)
	result, err := NewImporter(dst).Import(ctx, bundleDir, ImportMerge)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.BlocksImported != 3 {
		t.Fatalf("expected 3 imported blocks, got %d", result.BlocksImported)
	}
	if result.Validation == nil || !result.Validation.IsStructurallyIntact || !result.Validation.IsFullyCompliant {
		t.Fatalf("expected imported chain to validate cleanly, got %+v", result.Validation)
	}

	srcTip, err := src.Repositories().Blocks.Tip(ctx)
	if err != nil {
		t.Fatalf("src tip: %v", err)
	}
	dstTip, err := dst.Repositories().Blocks.Tip(ctx)
	if err != nil {
		t.Fatalf("dst tip: %v", err)
	}
	if srcTip.Hash != dstTip.Hash || srcTip.BlockNumber != dstTip.BlockNumber {
		t.Fatalf("expected identical tip after round trip, src=%+v dst=%+v", srcTip, dstTip)
	}
}

func TestImportMergeRefusesNonEmptyChain(t *testing.T) {
	ctx := context.Background()
	src := newTestEngine(t)
	signer := newTestSigner(t, src)
	if _, err := src.Append(ctx, []byte("x"), signer, ledger.AppendOptions{}); err != nil {
		t.Fatalf("append: %v", err)
	}

	bundleDir := filepath.Join(t.TempDir(), "bundle")
	if _, err := NewExporter(src).Export(ctx, bundleDir); err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := newTestEngine(t)
	dstSigner := newTestSigner(t, dst)
	if _, err := dst.Append(ctx, []byte("already here"), dstSigner, ledger.AppendOptions{}); err != nil {
		t.Fatalf("seed dst: %v", err)
	}

	if _, err := NewImporter(dst).Import(ctx, bundleDir, ImportMerge); err == nil {
		t.Fatal("expected merge import into a non-empty chain to fail")
	}
}

func TestReconcileOrphansRemovesUnreferencedFiles(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	signer := newTestSigner(t, e)

	large := make([]byte, 256)
	block, err := e.Append(ctx, large, signer, ledger.AppendOptions{})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !block.IsOffChain() {
		t.Fatal("expected payload to spill off-chain")
	}

	managedBefore, err := e.Store().ManagedFiles()
	if err != nil {
		t.Fatalf("managed files: %v", err)
	}
	if len(managedBefore) != 1 {
		t.Fatalf("expected exactly one managed off-chain file, got %d", len(managedBefore))
	}

	orphanName := "offchain_1700000000000_deadbeefdeadbeef.dat"
	orphanPath := filepath.Join(e.Store().Dir(), orphanName)
	if err := os.WriteFile(orphanPath, []byte("leftover"), 0600); err != nil {
		t.Fatalf("write orphan file: %v", err)
	}

	report, err := ReconcileOrphans(ctx, e)
	if err != nil {
		t.Fatalf("reconcile orphans: %v", err)
	}
	if report.OrphansFound != 1 || report.OrphansDeleted != 1 {
		t.Fatalf("expected exactly one orphan found and deleted, got %+v", report)
	}
	if _, err := os.Stat(orphanPath); !os.IsNotExist(err) {
		t.Fatal("expected orphan file to be removed")
	}
	if _, err := os.Stat(filepath.Join(e.Store().Dir(), managedBefore[0])); err != nil {
		t.Fatalf("expected referenced file to survive reconciliation: %v", err)
	}

	report2, err := ReconcileOrphans(ctx, e)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if report2.OrphansFound != 0 {
		t.Fatalf("expected reconciliation to be idempotent, found %d orphans on second pass", report2.OrphansFound)
	}
}
