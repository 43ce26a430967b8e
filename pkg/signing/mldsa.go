// Copyright 2025 Ledgercore Contributors

package signing

import (
	"fmt"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/schemes"
)

var mldsa87Scheme = schemes.ByName(string(SchemeMLDSA87))

// mldsaSigner signs with ML-DSA-87 via cloudflare/circl's generic sign.Scheme
// interface.
type mldsaSigner struct {
	scheme sign.Scheme
	pub    sign.PublicKey
	priv   sign.PrivateKey
}

// GenerateMLDSA87 creates a fresh ML-DSA-87 key pair.
func GenerateMLDSA87() (Signer, error) {
	if mldsa87Scheme == nil {
		return nil, fmt.Errorf("signing: ML-DSA-87 scheme not registered")
	}
	pub, priv, err := mldsa87Scheme.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate ML-DSA-87 key pair: %w", err)
	}
	return &mldsaSigner{scheme: mldsa87Scheme, pub: pub, priv: priv}, nil
}

// LoadMLDSA87PrivateKey reconstructs a signer from a raw private key and
// its matching public key text (as produced by PublicKeyText).
func LoadMLDSA87PrivateKey(rawPrivateKey []byte, publicKeyText string) (Signer, error) {
	if mldsa87Scheme == nil {
		return nil, fmt.Errorf("signing: ML-DSA-87 scheme not registered")
	}
	scheme, keyBytes, err := decodeKey(publicKeyText)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if scheme != SchemeMLDSA87 {
		return nil, fmt.Errorf("public key is scheme %q, expected %q", scheme, SchemeMLDSA87)
	}
	pub, err := mldsa87Scheme.UnmarshalBinaryPublicKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("unmarshal public key: %w", err)
	}
	priv, err := mldsa87Scheme.UnmarshalBinaryPrivateKey(rawPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("unmarshal private key: %w", err)
	}
	return &mldsaSigner{scheme: mldsa87Scheme, pub: pub, priv: priv}, nil
}

func (s *mldsaSigner) Scheme() Scheme { return SchemeMLDSA87 }

func (s *mldsaSigner) PublicKeyText() string {
	raw, err := s.pub.MarshalBinary()
	if err != nil {
		return ""
	}
	return encodeKey(SchemeMLDSA87, raw)
}

// PrivateKeyBytes exposes the raw private key for persistence by the
// caller (e.g. pkg/signing.KeyManager). Never transmitted as part of a
// block.
func (s *mldsaSigner) PrivateKeyBytes() ([]byte, error) {
	return s.priv.MarshalBinary()
}

func (s *mldsaSigner) Sign(message []byte) (string, error) {
	sig := s.scheme.Sign(s.priv, message, nil)
	return encodeSignature(sig), nil
}

func verifyMLDSA87(publicKeyBytes, message, signature []byte) (bool, error) {
	if mldsa87Scheme == nil {
		return false, fmt.Errorf("signing: ML-DSA-87 scheme not registered")
	}
	pub, err := mldsa87Scheme.UnmarshalBinaryPublicKey(publicKeyBytes)
	if err != nil {
		return false, fmt.Errorf("unmarshal public key: %w", err)
	}
	return mldsa87Scheme.Verify(pub, message, signature, nil), nil
}
