package signing

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMLDSA87SignVerifyRoundTrip(t *testing.T) {
	signer, err := GenerateMLDSA87()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	msg := []byte("block hash bytes")
	sig, err := signer.Sign(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ok, err := Verify(signer.PublicKeyText(), msg, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected signature to verify")
	}
}

func TestMLDSA87RejectsTamperedMessage(t *testing.T) {
	signer, err := GenerateMLDSA87()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	sig, err := signer.Sign([]byte("original"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ok, err := Verify(signer.PublicKeyText(), []byte("tampered"), sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("expected tampered message to fail verification")
	}
}

func TestECDSAP256SignVerifyRoundTrip(t *testing.T) {
	signer, err := GenerateECDSAP256()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	msg := []byte("block hash bytes")
	sig, err := signer.Sign(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ok, err := Verify(signer.PublicKeyText(), msg, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected signature to verify")
	}
}

func TestWellFormedPublicKey(t *testing.T) {
	signer, err := GenerateECDSAP256()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !WellFormedPublicKey(signer.PublicKeyText()) {
		t.Fatal("expected well-formed key to be accepted")
	}
	if WellFormedPublicKey("garbage-not-a-key") {
		t.Fatal("expected malformed key to be rejected")
	}
}

func TestKeyManagerGenerateSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "signer.key")

	km1 := NewKeyManager(keyPath)
	if err := km1.LoadOrGenerateKey(SchemeECDSAP256); err != nil {
		t.Fatalf("generate: %v", err)
	}
	pubText := km1.Signer().PublicKeyText()

	if _, err := os.Stat(keyPath); err != nil {
		t.Fatalf("expected key file to be written: %v", err)
	}

	km2 := NewKeyManager(keyPath)
	if err := km2.LoadOrGenerateKey(SchemeECDSAP256); err != nil {
		t.Fatalf("load: %v", err)
	}
	if km2.Signer().PublicKeyText() != pubText {
		t.Fatal("reloaded key does not match saved key")
	}

	sig, err := km2.Signer().Sign([]byte("payload"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ok, err := Verify(pubText, []byte("payload"), sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected round-tripped key to verify its own signature")
	}
}
