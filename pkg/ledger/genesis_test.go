// Copyright 2025 Ledgercore Contributors

package ledger

import (
	"context"
	"testing"
	"time"
)

func TestGenesisBlockIsSelfConsistent(t *testing.T) {
	now := time.Now().UTC()
	b := buildGenesisBlock(now)

	if !b.IsGenesis() {
		t.Fatal("expected genesis block to report IsGenesis")
	}
	if b.PreviousHash != GenesisPreviousHash {
		t.Fatalf("expected previousHash %q, got %q", GenesisPreviousHash, b.PreviousHash)
	}
	if !b.VerifyHash() {
		t.Fatal("expected genesis block's hash to verify against its own canonical encoding")
	}
}

func TestGenesisBlockCreatedOnFirstAppend(t *testing.T) {
	e, _ := newTestEngine(t)
	signer := newTestSigner(t, e)
	ctx := context.Background()

	block, err := e.Append(ctx, []byte("first"), signer, AppendOptions{})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if block.BlockNumber != 1 {
		t.Fatalf("expected first user block to be number 1, got %d", block.BlockNumber)
	}

	genesis, err := e.Repositories().Blocks.GetBlockByNumber(ctx, 0)
	if err != nil {
		t.Fatalf("get genesis block: %v", err)
	}
	if genesis.SignerPublicKey != genesisSignerPublicKey {
		t.Fatalf("expected sentinel genesis signer, got %q", genesis.SignerPublicKey)
	}
	if block.PreviousHash != genesis.Hash {
		t.Fatal("expected first user block to chain from genesis's hash")
	}
}
