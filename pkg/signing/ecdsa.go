// Copyright 2025 Ledgercore Contributors

package signing

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
)

// ecdsaSigner implements Signer with the documented P-256 fallback scheme
// (spec.md §9) for deployments where the post-quantum suite is unavailable.
type ecdsaSigner struct {
	priv *ecdsa.PrivateKey
}

// GenerateECDSAP256 creates a fresh P-256 key pair.
func GenerateECDSAP256() (Signer, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate P-256 key pair: %w", err)
	}
	return &ecdsaSigner{priv: priv}, nil
}

// LoadECDSAP256PrivateKey reconstructs a signer from a PKCS#8-encoded
// private key.
func LoadECDSAP256PrivateKey(der []byte) (Signer, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse PKCS8 private key: %w", err)
	}
	priv, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not an ECDSA private key")
	}
	return &ecdsaSigner{priv: priv}, nil
}

// PrivateKeyDER returns the PKCS#8 DER encoding for persistence.
func (s *ecdsaSigner) PrivateKeyDER() ([]byte, error) {
	return x509.MarshalPKCS8PrivateKey(s.priv)
}

func (s *ecdsaSigner) Scheme() Scheme { return SchemeECDSAP256 }

func (s *ecdsaSigner) PublicKeyText() string {
	raw, err := x509.MarshalPKIXPublicKey(&s.priv.PublicKey)
	if err != nil {
		return ""
	}
	return encodeKey(SchemeECDSAP256, raw)
}

func (s *ecdsaSigner) Sign(message []byte) (string, error) {
	digest := sha256.Sum256(message)
	sig, err := ecdsa.SignASN1(rand.Reader, s.priv, digest[:])
	if err != nil {
		return "", fmt.Errorf("ECDSA-P256 sign: %w", err)
	}
	return encodeSignature(sig), nil
}

func verifyECDSAP256(publicKeyBytes, message, signature []byte) (bool, error) {
	key, err := x509.ParsePKIXPublicKey(publicKeyBytes)
	if err != nil {
		return false, fmt.Errorf("parse PKIX public key: %w", err)
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return false, fmt.Errorf("key is not an ECDSA public key")
	}
	digest := sha256.Sum256(message)
	return ecdsa.VerifyASN1(pub, digest[:], signature), nil
}
