// Copyright 2025 Ledgercore Contributors
//
// Package signing provides the digital-signature primitives used to sign
// and verify block hashes (spec.md §9: a post-quantum lattice signature
// scheme, with ECDSA P-256 as the documented fallback). The signature and
// public-key fields persisted on a Block are opaque text either way.

package signing

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Scheme identifies which signature algorithm a key pair belongs to.
type Scheme string

const (
	// SchemeMLDSA87 is the primary scheme: ML-DSA-87 (FIPS 204), the
	// finalized NIST post-quantum signature standard at the 256-bit
	// security level, equivalent to Dilithium mode 5.
	SchemeMLDSA87 Scheme = "ML-DSA-87"
	// SchemeECDSAP256 is the documented fallback when the PQ suite is
	// unavailable.
	SchemeECDSAP256 Scheme = "ECDSA-P256"
)

// Signer signs messages (in this codebase, always a block's SHA3-256
// hash) under one signature scheme; verification is the package-level
// Verify.
type Signer interface {
	Scheme() Scheme
	PublicKeyText() string
	Sign(message []byte) (signatureText string, err error)
}

// Verify checks a signature against the public key's text serialization.
// The scheme is recovered from the public key's own encoding (see
// encodeKey/decodeKey below), so callers never need to track it
// separately from the key.
func Verify(publicKeyText string, message []byte, signatureText string) (bool, error) {
	scheme, keyBytes, err := decodeKey(publicKeyText)
	if err != nil {
		return false, fmt.Errorf("decode public key: %w", err)
	}
	sigBytes, err := base64.StdEncoding.DecodeString(signatureText)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}

	switch scheme {
	case SchemeMLDSA87:
		return verifyMLDSA87(keyBytes, message, sigBytes)
	case SchemeECDSAP256:
		return verifyECDSAP256(keyBytes, message, sigBytes)
	default:
		return false, fmt.Errorf("unsupported signature scheme %q", scheme)
	}
}

// WellFormedPublicKey reports whether the given text is a parseable public
// key of a known scheme, without attempting any cryptographic operation.
// Used by the key registry to reject malformed keys at registration time
// (spec.md §4.5).
func WellFormedPublicKey(publicKeyText string) bool {
	_, _, err := decodeKey(publicKeyText)
	return err == nil
}

// encodeKey renders a public key as "<scheme>:<base64 bytes>", the opaque
// text serialization spec.md requires.
func encodeKey(scheme Scheme, raw []byte) string {
	return fmt.Sprintf("%s:%s", scheme, base64.StdEncoding.EncodeToString(raw))
}

func decodeKey(text string) (Scheme, []byte, error) {
	parts := strings.SplitN(text, ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("malformed public key text")
	}
	scheme := Scheme(parts[0])
	raw, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("decode key bytes: %w", err)
	}
	switch scheme {
	case SchemeMLDSA87, SchemeECDSAP256:
		return scheme, raw, nil
	default:
		return "", nil, fmt.Errorf("unknown scheme %q", scheme)
	}
}

func encodeSignature(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}
