// Copyright 2025 Ledgercore Contributors

package ledger

import (
	"context"
	"testing"
	"time"
)

func TestValidateChainDetailedOnEmptyChain(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	result, err := e.ValidateChainDetailed(ctx, ValidationFull)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.TotalBlocks != 0 {
		t.Fatalf("expected zero blocks, got %d", result.TotalBlocks)
	}
	if !result.IsStructurallyIntact || !result.IsFullyCompliant {
		t.Fatal("expected an empty chain to be trivially intact and compliant")
	}
}

func TestValidateChainDetectsTamperedHash(t *testing.T) {
	e, client := newTestEngine(t)
	signer := newTestSigner(t, e)
	ctx := context.Background()

	block, err := e.Append(ctx, []byte("payload"), signer, AppendOptions{})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	tx, err := client.BeginTx(ctx)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE blocks SET hash = $1 WHERE block_number = $2`, "tampered", block.BlockNumber); err != nil {
		t.Fatalf("tamper block: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	result, err := e.ValidateChainDetailed(ctx, ValidationFull)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.IsStructurallyIntact {
		t.Fatal("expected tampered chain to be reported structurally unsound")
	}
	if len(result.InvalidBlocks) != 1 || result.InvalidBlocks[0] != block.BlockNumber {
		t.Fatalf("expected block %d reported invalid, got %v", block.BlockNumber, result.InvalidBlocks)
	}
}

func TestValidateChainDetectsRevokedSigner(t *testing.T) {
	e, client := newTestEngine(t)
	signer := newTestSigner(t, e)
	ctx := context.Background()

	block, err := e.Append(ctx, []byte("payload"), signer, AppendOptions{})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	// Back-date the signer's authorization window so it no longer covers
	// the already-appended block, simulating a later revocation.
	if err := e.Registry().Revoke(ctx, signer.PublicKeyText(), "test-harness"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := client.ExecContext(ctx, `UPDATE authorized_keys SET revoked_at = $1 WHERE public_key = $2`,
		block.Timestamp.Add(-time.Second), signer.PublicKeyText()); err != nil {
		t.Fatalf("back-date revocation: %v", err)
	}

	result, err := e.ValidateChainDetailed(ctx, ValidationFull)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.IsFullyCompliant {
		t.Fatal("expected chain to no longer be fully compliant after a simulated out-of-window revocation")
	}
	_ = block
}

func TestValidateChainStreamingMatchesDetailed(t *testing.T) {
	e, _ := newTestEngine(t)
	signer := newTestSigner(t, e)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := e.Append(ctx, []byte("payload"), signer, AppendOptions{}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	detailed, err := e.ValidateChainDetailed(ctx, ValidationFull)
	if err != nil {
		t.Fatalf("detailed validate: %v", err)
	}
	streamed, err := e.ValidateChainStreaming(ctx, ValidationFull, 3)
	if err != nil {
		t.Fatalf("streaming validate: %v", err)
	}
	if detailed.TotalBlocks != streamed.TotalBlocks {
		t.Fatalf("expected matching block counts, got detailed=%d streamed=%d", detailed.TotalBlocks, streamed.TotalBlocks)
	}
	if detailed.IsStructurallyIntact != streamed.IsStructurallyIntact {
		t.Fatal("expected streaming and detailed validation to agree on structural integrity")
	}
}
