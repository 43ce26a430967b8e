package objectstore

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type stubSigner struct{}

func (stubSigner) Sign(message []byte) (string, error) {
	return "stub-signature:" + string(message), nil
}

func stubVerify(publicKeyText string, message, signature []byte) (bool, error) {
	return string(signature) == "stub-signature:"+string(message), nil
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	plaintext := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 500)
	meta, err := store.Write(bytes.NewReader(plaintext), 42, "signer-pub-key", "text/plain", stubSigner{})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	if !isManagedFilename(meta.FilePath) {
		t.Fatalf("filePath %q does not match managed pattern", meta.FilePath)
	}

	var out bytes.Buffer
	if err := store.Read(&out, meta, 42, stubVerify); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(out.Bytes(), plaintext) {
		t.Fatal("round-tripped plaintext does not match original")
	}
}

func TestReadDetectsTamperedFile(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	meta, err := store.Write(strings.NewReader("sensitive payload"), 7, "signer-pub-key", "text/plain", stubSigner{})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	fullPath := filepath.Join(dir, meta.FilePath)
	data, err := os.ReadFile(fullPath)
	if err != nil {
		t.Fatalf("read raw file: %v", err)
	}
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(fullPath, data, 0600); err != nil {
		t.Fatalf("write tampered file: %v", err)
	}

	var out bytes.Buffer
	err = store.Read(&out, meta, 7, stubVerify)
	if err == nil {
		t.Fatal("expected integrity error for tampered file")
	}
	if _, ok := err.(*IntegrityError); !ok {
		t.Fatalf("expected *IntegrityError, got %T: %v", err, err)
	}
}

func TestDeleteRemovesFile(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	meta, err := store.Write(strings.NewReader("payload"), 1, "signer-pub-key", "text/plain", stubSigner{})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := store.Delete(meta); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, meta.FilePath)); !os.IsNotExist(err) {
		t.Fatal("expected off-chain file to be removed")
	}

	// Deleting again is a no-op, matching the orphan reconciler's tolerance
	// for files that vanished between listing and unlink.
	if err := store.Delete(meta); err != nil {
		t.Fatalf("delete again: %v", err)
	}
}

func TestResolveWithinDirRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	if _, err := resolveWithinDir(dir, "../../etc/passwd"); err == nil {
		t.Fatal("expected escape attempt to be rejected")
	}
	if _, err := resolveWithinDir(dir, "not-a-managed-name.dat"); err == nil {
		t.Fatal("expected non-conforming filename to be rejected")
	}
}

func TestManagedFilesIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if _, err := store.Write(strings.NewReader("a"), 1, "pub", "text/plain", stubSigner{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("not managed"), 0600); err != nil {
		t.Fatalf("write foreign file: %v", err)
	}

	names, err := store.ManagedFiles()
	if err != nil {
		t.Fatalf("managed files: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("expected exactly one managed file, got %v", names)
	}
}

func TestDerivePasswordIsDeterministic(t *testing.T) {
	a := derivePassword(42, "signer-pub-key")
	b := derivePassword(42, "signer-pub-key")
	c := derivePassword(43, "signer-pub-key")
	if a != b {
		t.Fatal("expected identical inputs to derive the same password")
	}
	if a == c {
		t.Fatal("expected different block numbers to derive different passwords")
	}
	if len(a) != 32 {
		t.Fatalf("expected 32-character password, got %d", len(a))
	}
}
