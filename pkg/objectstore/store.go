// Copyright 2025 Ledgercore Contributors
//
// Store implements the off-chain encrypted object store: one directory of
// content-addressed, AES-256-GCM-encrypted files, each owned exclusively by
// the Block that references it. Write/Read/Delete mirror the teacher's
// repository-style wrapper over a single resource, generalized from a SQL
// table to a managed directory.

package objectstore

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"
)

// Signer is the subset of signing.Signer this package depends on, kept
// narrow so objectstore never imports the signing package's concrete types.
type Signer interface {
	Sign(message []byte) (string, error)
}

// Verifier is the subset of signing verification this package depends on.
type Verifier func(publicKeyText string, message, signature []byte) (bool, error)

// Metadata is the off-chain counterpart of a catalog OffChainData row. Every
// field here round-trips through pkg/database exactly as named.
type Metadata struct {
	DataHash        string // hex SHA3-256 of plaintext
	Signature       string // signer's signature text over DataHash (base64)
	SignerPublicKey string
	FilePath        string // path relative to the store's root directory
	FileSize        int64
	EncryptionIV    string // base64, 12 bytes
	EncryptionSalt  string // base64, 32 bytes — persisted alongside the IV per spec.md §4.3
	ContentType     string
	CreatedAt       time.Time
}

// Store manages one off-chain directory.
type Store struct {
	dir string
}

// New creates a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create off-chain directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Write streams r's contents into a new encrypted file, producing the
// metadata record the catalog must persist alongside the referencing block.
// blockNumber and signerPublicKey feed the deterministic password
// derivation (spec.md §4.3); signer signs the resulting plaintext hash.
func (s *Store) Write(r io.Reader, blockNumber int64, signerPublicKey, contentType string, signer Signer) (Metadata, error) {
	iv := make([]byte, gcmNonceSize)
	if _, err := rand.Read(iv); err != nil {
		return Metadata{}, fmt.Errorf("generate IV: %w", err)
	}
	salt := make([]byte, pbkdf2SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return Metadata{}, fmt.Errorf("generate salt: %w", err)
	}

	password := derivePassword(blockNumber, signerPublicKey)
	key := deriveKey(password, salt)
	gcm, err := newGCM(key)
	if err != nil {
		return Metadata{}, err
	}

	name, err := newFilename(time.Now().UnixMilli())
	if err != nil {
		return Metadata{}, err
	}
	fullPath, err := resolveWithinDir(s.dir, name)
	if err != nil {
		return Metadata{}, err
	}

	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return Metadata{}, fmt.Errorf("create off-chain file: %w", err)
	}
	defer f.Close()

	dataHash, size, err := streamEncrypt(f, r, gcm, iv)
	if err != nil {
		f.Close()
		_ = os.Remove(fullPath)
		return Metadata{}, fmt.Errorf("encrypt off-chain payload: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = os.Remove(fullPath)
		return Metadata{}, fmt.Errorf("sync off-chain file: %w", err)
	}

	hashHex := hex.EncodeToString(dataHash[:])
	signature, err := signer.Sign([]byte(hashHex))
	if err != nil {
		_ = os.Remove(fullPath)
		return Metadata{}, fmt.Errorf("sign data hash: %w", err)
	}

	return Metadata{
		DataHash:        hashHex,
		Signature:       signature,
		SignerPublicKey: signerPublicKey,
		FilePath:        name,
		FileSize:        size,
		EncryptionIV:    base64.StdEncoding.EncodeToString(iv),
		EncryptionSalt:  base64.StdEncoding.EncodeToString(salt),
		ContentType:     contentType,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// Read decrypts the file described by meta into w, verifying the plaintext
// hash and the signer's signature over it. Any mismatch is reported as an
// integrity failure rather than silently returning partial data.
func (s *Store) Read(w io.Writer, meta Metadata, blockNumber int64, verify Verifier) error {
	fullPath, err := resolveWithinDir(s.dir, meta.FilePath)
	if err != nil {
		return err
	}
	iv, err := base64.StdEncoding.DecodeString(meta.EncryptionIV)
	if err != nil {
		return fmt.Errorf("decode IV: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(meta.EncryptionSalt)
	if err != nil {
		return fmt.Errorf("decode salt: %w", err)
	}

	password := derivePassword(blockNumber, meta.SignerPublicKey)
	key := deriveKey(password, salt)
	gcm, err := newGCM(key)
	if err != nil {
		return err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return fmt.Errorf("open off-chain file: %w", err)
	}
	defer f.Close()

	dataHash, err := streamDecrypt(w, f, gcm, iv)
	if err != nil {
		return &IntegrityError{Reason: err.Error()}
	}

	hashHex := hex.EncodeToString(dataHash[:])
	if hashHex != meta.DataHash {
		return &IntegrityError{Reason: "plaintext hash does not match stored dataHash"}
	}

	if verify != nil {
		ok, err := verify(meta.SignerPublicKey, []byte(hashHex), []byte(meta.Signature))
		if err != nil {
			return fmt.Errorf("verify off-chain signature: %w", err)
		}
		if !ok {
			return &IntegrityError{Reason: "signature over dataHash does not verify"}
		}
	}
	return nil
}

// Delete unlinks the file owned by meta. Only the owning block's delete
// path should call this; it re-validates the filename pattern and
// containment before unlinking, per spec.md §4.3.
func (s *Store) Delete(meta Metadata) error {
	fullPath, err := resolveWithinDir(s.dir, meta.FilePath)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete off-chain file: %w", err)
	}
	return nil
}

// ManagedFiles lists the basenames of every file in the store's directory
// that matches the managed filename pattern. Used by the orphan reconciler
// (spec.md §4.6) to find files with no referencing block.
func (s *Store) ManagedFiles() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read off-chain directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isManagedFilename(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// DeleteByName unlinks a managed file by its bare name, used by the orphan
// reconciler once it has decided a file is unreferenced.
func (s *Store) DeleteByName(name string) error {
	fullPath, err := resolveWithinDir(s.dir, name)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete off-chain file: %w", err)
	}
	return nil
}

// FullPath returns the absolute path of a managed file, for disk-space or
// size inspection by callers.
func (s *Store) FullPath(name string) (string, error) {
	return resolveWithinDir(s.dir, name)
}
