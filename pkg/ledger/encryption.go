// Copyright 2025 Ledgercore Contributors
//
// Optional inline payload encryption (spec.md §4.2 step 4): AES-256-GCM
// keyed via PBKDF2-HMAC-SHA-512 with a fresh salt, distinct from
// pkg/objectstore's deterministic off-chain scheme because here the caller
// supplies the password explicitly rather than deriving it from block
// fields. The envelope format is spec.md's own:
// `timestamp|salt_b64|iv_b64|ct_b64|plainHash`.

package ledger

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

const (
	inlinePBKDF2Iterations = 210000
	inlineSaltSize         = 32
	inlineNonceSize        = 12
	inlineKeySize          = 32

	// inlineEncryptedPlaceholder replaces Block.Data when the payload is
	// encrypted inline; the real ciphertext lives in EncryptionMetadata.
	inlineEncryptedPlaceholder = "ENCRYPTED_ON_CHAIN"
)

// encryptInline seals plaintext under password, returning the pipe-
// delimited envelope persisted in Block.EncryptionMetadata.
func encryptInline(plaintext []byte, password string, at time.Time) (string, error) {
	salt := make([]byte, inlineSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	nonce := make([]byte, inlineNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, inlinePBKDF2Iterations, inlineKeySize, sha512.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("new AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("new GCM: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	plainHash := sha3.Sum256(plaintext)

	fields := []string{
		strconv.FormatInt(at.UnixMilli(), 10),
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(nonce),
		base64.StdEncoding.EncodeToString(ciphertext),
		hex.EncodeToString(plainHash[:]),
	}
	return strings.Join(fields, "|"), nil
}

// decryptInline reverses encryptInline, verifying the plaintext hash it
// carries. Any mismatch or decryption failure is reported as an integrity
// failure, matching the off-chain read path's disposition (spec.md §4.3).
func decryptInline(envelope, password string) ([]byte, error) {
	parts := strings.Split(envelope, "|")
	if len(parts) != 5 {
		return nil, fmt.Errorf("malformed encryption envelope")
	}
	salt, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	wantHash := parts[4]

	key := pbkdf2.Key([]byte(password), salt, inlinePBKDF2Iterations, inlineKeySize, sha512.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new GCM: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	gotHash := sha3.Sum256(plaintext)
	if hex.EncodeToString(gotHash[:]) != wantHash {
		return nil, fmt.Errorf("plaintext hash does not match envelope")
	}
	return plaintext, nil
}
