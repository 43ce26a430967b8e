// Copyright 2025 Ledgercore Contributors

package ledger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/tamperledger/ledgercore/pkg/ledgererr"
	"github.com/tamperledger/ledgercore/pkg/signing"
)

func TestAppendChainsBlocksAndVerifies(t *testing.T) {
	e, _ := newTestEngine(t)
	signer := newTestSigner(t, e)
	ctx := context.Background()

	var prevHash string
	for i := 0; i < 3; i++ {
		block, err := e.Append(ctx, []byte("payload"), signer, AppendOptions{ContentCategory: "note"})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if !block.VerifyHash() {
			t.Fatalf("block %d hash does not verify", block.BlockNumber)
		}
		if i > 0 && block.PreviousHash != prevHash {
			t.Fatalf("block %d does not chain from the prior block's hash", block.BlockNumber)
		}
		prevHash = block.Hash
	}

	result, err := e.ValidateChainDetailed(ctx, ValidationFull)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.IsStructurallyIntact || !result.IsFullyCompliant {
		t.Fatalf("expected intact and compliant chain, got %+v", result)
	}
}

func TestAppendRejectsUnauthorizedSigner(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	stranger, err := signing.GenerateECDSAP256()
	if err != nil {
		t.Fatalf("generate stranger: %v", err)
	}

	_, err = e.Append(ctx, []byte("payload"), stranger, AppendOptions{})
	if err == nil {
		t.Fatal("expected append by an unregistered signer to fail")
	}
	if ledgererr.KindOf(err) != ledgererr.KindAuthorizationDenied {
		t.Fatalf("expected KindAuthorizationDenied, got %v", ledgererr.KindOf(err))
	}
}

func TestAppendSpillsLargePayloadOffChain(t *testing.T) {
	e, _ := newTestEngine(t)
	signer := newTestSigner(t, e)
	ctx := context.Background()

	large := bytes.Repeat([]byte("x"), 128) // threshold in newTestEngine is 64 bytes
	block, err := e.Append(ctx, large, signer, AppendOptions{})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !block.IsOffChain() {
		t.Fatal("expected large payload to spill off-chain")
	}
	if block.OffChainDataID == "" {
		t.Fatal("expected off-chain block to carry an OffChainDataID")
	}

	plaintext, err := DecryptInlinePayload(block, "")
	if err == nil {
		t.Fatal("expected DecryptInlinePayload to reject a non-inline-encrypted block")
	}
	_ = plaintext
}

func TestAppendInlineEncryption(t *testing.T) {
	e, _ := newTestEngine(t)
	signer := newTestSigner(t, e)
	ctx := context.Background()

	block, err := e.Append(ctx, []byte("secret note"), signer, AppendOptions{Password: "hunter2"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !block.IsEncrypted {
		t.Fatal("expected block to be marked encrypted")
	}
	if block.Data != inlineEncryptedPlaceholder {
		t.Fatalf("expected Data to be the encrypted placeholder, got %q", block.Data)
	}

	plaintext, err := DecryptInlinePayload(block, "hunter2")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(plaintext) != "secret note" {
		t.Fatalf("expected decrypted plaintext %q, got %q", "secret note", plaintext)
	}

	if _, err := DecryptInlinePayload(block, "wrong password"); err == nil {
		t.Fatal("expected decryption with the wrong password to fail")
	}
}

func TestAppendRejectsOversizedKeywordFields(t *testing.T) {
	e, _ := newTestEngine(t)
	signer := newTestSigner(t, e)
	ctx := context.Background()

	_, err := e.Append(ctx, []byte("payload"), signer, AppendOptions{ManualKeywords: strings.Repeat("k", MaxManualKeywordsLen+1)})
	if err == nil {
		t.Fatal("expected oversized manualKeywords to be rejected")
	}
	if ledgererr.KindOf(err) != ledgererr.KindInvalidInput {
		t.Fatalf("expected KindInvalidInput, got %v", ledgererr.KindOf(err))
	}
}

func TestAppendRevokedSignerIsDeniedGoingForward(t *testing.T) {
	e, _ := newTestEngine(t)
	signer := newTestSigner(t, e)
	ctx := context.Background()

	if _, err := e.Append(ctx, []byte("before revoke"), signer, AppendOptions{}); err != nil {
		t.Fatalf("append before revoke: %v", err)
	}
	if err := e.Registry().Revoke(ctx, signer.PublicKeyText(), "test-harness"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := e.Append(ctx, []byte("after revoke"), signer, AppendOptions{}); err == nil {
		t.Fatal("expected append by a revoked signer to be denied")
	}

	// The block appended before revocation remains compliant, since I4
	// checks authorization at the block's own timestamp.
	result, err := e.ValidateChainDetailed(ctx, ValidationFull)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.IsFullyCompliant {
		t.Fatalf("expected pre-revocation block to remain compliant, got %+v", result)
	}
}
