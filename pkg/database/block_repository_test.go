package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/tamperledger/ledgercore/pkg/config"
)

// newTestClient opens an in-memory SQLite catalog and runs migrations. The
// SQLite dialect needs no external service, so these tests exercise the
// full repository layer without an env-var-gated skip.
func newTestClient(t *testing.T) *Client {
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

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if err := client.MigrateUp(context.Background()); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	return client
}

func sampleBlockRow(number int64, prevHash string) *BlockRow {
	now := time.Now().UTC()
	return &BlockRow{
		BlockNumber:     number,
		Hash:            "hash-of-block-" + string(rune('0'+number)),
		PreviousHash:    sql.NullString{String: prevHash, Valid: prevHash != ""},
		Data:            "payload",
		Signature:       "sig",
		SignerPublicKey: "signer-pub",
		IsEncrypted:     false,
		Timestamp:       now,
		CreatedAt:       now,
	}
}

func TestInsertAndGetBlock(t *testing.T) {
	client := newTestClient(t)
	repo := NewBlockRepository(client)
	ctx := context.Background()

	tx, err := client.BeginTx(ctx)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	row := sampleBlockRow(0, "")
	if err := repo.InsertBlock(ctx, tx, row); err != nil {
		t.Fatalf("insert block: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := repo.GetBlockByNumber(ctx, 0)
	if err != nil {
		t.Fatalf("get block: %v", err)
	}
	if got.Hash != row.Hash {
		t.Fatalf("expected hash %q, got %q", row.Hash, got.Hash)
	}
}

func TestDuplicateBlockNumberRejected(t *testing.T) {
	client := newTestClient(t)
	repo := NewBlockRepository(client)
	ctx := context.Background()

	tx, _ := client.BeginTx(ctx)
	_ = repo.InsertBlock(ctx, tx, sampleBlockRow(0, ""))
	tx.Commit()

	tx2, _ := client.BeginTx(ctx)
	err := repo.InsertBlock(ctx, tx2, sampleBlockRow(0, ""))
	tx2.Rollback()
	if err != ErrDuplicateBlockNumber {
		t.Fatalf("expected ErrDuplicateBlockNumber, got %v", err)
	}
}

func TestGetBlockByNumberNotFound(t *testing.T) {
	client := newTestClient(t)
	repo := NewBlockRepository(client)

	_, err := repo.GetBlockByNumber(context.Background(), 999)
	if err != ErrBlockNotFound {
		t.Fatalf("expected ErrBlockNotFound, got %v", err)
	}
}

func TestTipAndDeleteAbove(t *testing.T) {
	client := newTestClient(t)
	repo := NewBlockRepository(client)
	ctx := context.Background()

	prevHash := ""
	for i := int64(0); i < 5; i++ {
		tx, _ := client.BeginTx(ctx)
		row := sampleBlockRow(i, prevHash)
		if err := repo.InsertBlock(ctx, tx, row); err != nil {
			t.Fatalf("insert block %d: %v", i, err)
		}
		tx.Commit()
		prevHash = row.Hash
	}

	tip, err := repo.Tip(ctx)
	if err != nil {
		t.Fatalf("tip: %v", err)
	}
	if tip.BlockNumber != 4 {
		t.Fatalf("expected tip block number 4, got %d", tip.BlockNumber)
	}

	tx, _ := client.BeginTx(ctx)
	deleted, err := repo.DeleteAbove(ctx, tx, 2)
	if err != nil {
		t.Fatalf("delete above: %v", err)
	}
	tx.Commit()
	if len(deleted) != 2 {
		t.Fatalf("expected 2 deleted blocks, got %d", len(deleted))
	}

	newTip, err := repo.Tip(ctx)
	if err != nil {
		t.Fatalf("tip after delete: %v", err)
	}
	if newTip.BlockNumber != 2 {
		t.Fatalf("expected tip block number 2 after rollback, got %d", newTip.BlockNumber)
	}
}

func TestStreamPages(t *testing.T) {
	client := newTestClient(t)
	repo := NewBlockRepository(client)
	ctx := context.Background()

	prevHash := ""
	for i := int64(0); i < 7; i++ {
		tx, _ := client.BeginTx(ctx)
		row := sampleBlockRow(i, prevHash)
		if err := repo.InsertBlock(ctx, tx, row); err != nil {
			t.Fatalf("insert block %d: %v", i, err)
		}
		tx.Commit()
		prevHash = row.Hash
	}

	var seen []int64
	err := repo.StreamPages(ctx, 3, func(page []*BlockRow) error {
		for _, b := range page {
			seen = append(seen, b.BlockNumber)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("stream pages: %v", err)
	}
	if len(seen) != 7 {
		t.Fatalf("expected to see 7 blocks across pages, got %d", len(seen))
	}
	for i, n := range seen {
		if n != int64(i) {
			t.Fatalf("expected ascending block numbers, got %v", seen)
		}
	}
}

func TestRebindForMySQLDialect(t *testing.T) {
	client := &Client{dialect: config.DialectMySQL}
	got := client.Rebind("SELECT * FROM blocks WHERE block_number = $1 AND hash = $2")
	want := "SELECT * FROM blocks WHERE block_number = ? AND hash = ?"
	if got != want {
		t.Fatalf("rebind mismatch:\n got:  %q\n want: %q", got, want)
	}
}

func TestRebindLeavesOtherDialectsUnchanged(t *testing.T) {
	client := &Client{dialect: config.DialectPostgres}
	query := "SELECT * FROM blocks WHERE block_number = $1"
	if got := client.Rebind(query); got != query {
		t.Fatalf("expected postgres query unchanged, got %q", got)
	}
}
