// Copyright 2025 Ledgercore Contributors
//
// KeyManager handles signer key generation, loading, and storage for a
// ledger writer's private key. Load/Generate/Save flow mirrors the
// teacher's bls.KeyManager (pkg/crypto/bls/key_manager.go), generalized
// over the two schemes in this package.

package signing

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cloudflare/circl/sign"
)

// KeyManager owns one signer's private key on disk, hex-encoded with
// a scheme tag so the right decoder is used on reload.
type KeyManager struct {
	keyPath string
	signer  Signer
}

// NewKeyManager creates a key manager rooted at keyPath. An empty keyPath
// means the key is never persisted (useful for ephemeral test signers).
func NewKeyManager(keyPath string) *KeyManager {
	return &KeyManager{keyPath: keyPath}
}

// LoadOrGenerateKey loads an existing key from keyPath, or generates and
// (if keyPath is set) persists a new one of the given scheme.
func (km *KeyManager) LoadOrGenerateKey(scheme Scheme) error {
	if km.keyPath != "" {
		if _, err := os.Stat(km.keyPath); err == nil {
			return km.LoadKey()
		}
	}
	return km.GenerateNewKey(scheme)
}

// LoadKey loads an existing key from keyPath.
func (km *KeyManager) LoadKey() error {
	if km.keyPath == "" {
		return fmt.Errorf("no key path specified")
	}

	data, err := os.ReadFile(km.keyPath)
	if err != nil {
		return fmt.Errorf("read key file: %w", err)
	}

	scheme, rawHex, found := splitSchemeTag(string(data))
	if !found {
		return fmt.Errorf("key file missing scheme tag")
	}
	keyBytes, err := hex.DecodeString(rawHex)
	if err != nil {
		return fmt.Errorf("decode key hex: %w", err)
	}

	switch scheme {
	case SchemeMLDSA87:
		signer, err := loadMLDSA87FromPrivateBytes(keyBytes)
		if err != nil {
			return fmt.Errorf("load ML-DSA-87 key: %w", err)
		}
		km.signer = signer
	case SchemeECDSAP256:
		signer, err := LoadECDSAP256PrivateKey(keyBytes)
		if err != nil {
			return fmt.Errorf("load ECDSA-P256 key: %w", err)
		}
		km.signer = signer
	default:
		return fmt.Errorf("unknown scheme tag %q", scheme)
	}
	return nil
}

// loadMLDSA87FromPrivateBytes reconstructs a signer purely from the raw
// private key; circl derives the matching public key from the private
// key's own Public() method, so only the private key needs to be on disk.
func loadMLDSA87FromPrivateBytes(raw []byte) (Signer, error) {
	if mldsa87Scheme == nil {
		return nil, fmt.Errorf("signing: ML-DSA-87 scheme not registered")
	}
	priv, err := mldsa87Scheme.UnmarshalBinaryPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("unmarshal private key: %w", err)
	}
	pub, ok := priv.Public().(sign.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unexpected public key type derived from private key")
	}
	return &mldsaSigner{scheme: mldsa87Scheme, pub: pub, priv: priv}, nil
}

// GenerateNewKey generates a fresh key pair of the given scheme and saves
// it if a key path was configured.
func (km *KeyManager) GenerateNewKey(scheme Scheme) error {
	var signer Signer
	var err error
	switch scheme {
	case SchemeMLDSA87:
		signer, err = GenerateMLDSA87()
	case SchemeECDSAP256:
		signer, err = GenerateECDSAP256()
	default:
		return fmt.Errorf("unknown scheme %q", scheme)
	}
	if err != nil {
		return fmt.Errorf("generate %s key pair: %w", scheme, err)
	}
	km.signer = signer

	if km.keyPath != "" {
		return km.SaveKey()
	}
	return nil
}

// SaveKey writes the private key to keyPath with 0600 permissions.
func (km *KeyManager) SaveKey() error {
	if km.keyPath == "" {
		return fmt.Errorf("no key path specified")
	}
	if km.signer == nil {
		return fmt.Errorf("no key loaded")
	}

	dir := filepath.Dir(km.keyPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	var rawPriv []byte
	var err error
	switch s := km.signer.(type) {
	case *mldsaSigner:
		rawPriv, err = s.PrivateKeyBytes()
	case *ecdsaSigner:
		rawPriv, err = s.PrivateKeyDER()
	default:
		err = fmt.Errorf("unsupported signer implementation")
	}
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}

	contents := fmt.Sprintf("%s:%s", km.signer.Scheme(), hex.EncodeToString(rawPriv))
	if err := os.WriteFile(km.keyPath, []byte(contents), 0600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// Signer returns the loaded/generated signer.
func (km *KeyManager) Signer() Signer {
	return km.signer
}

func splitSchemeTag(contents string) (Scheme, string, bool) {
	for i := 0; i < len(contents); i++ {
		if contents[i] == ':' {
			return Scheme(contents[:i]), contents[i+1:], true
		}
	}
	return "", "", false
}
