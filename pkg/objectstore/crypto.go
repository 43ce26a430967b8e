// Copyright 2025 Ledgercore Contributors
//
// Streaming AES-256-GCM encryption for off-chain files, keyed by a
// PBKDF2-HMAC-SHA-512-derived key (spec.md §4.3). GCM has no native
// streaming mode, so the plaintext is split into fixed-size frames, each
// sealed independently under a nonce derived from a random base IV plus
// the frame index, with the frame index and a final-frame marker carried
// as additional authenticated data so frames cannot be reordered,
// dropped, or truncated without detection.

package objectstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

const (
	chunkSize        = 8192 // 8 KiB, per spec.md §4.3
	gcmNonceSize     = 12
	gcmKeySize       = 32 // AES-256
	pbkdf2Iterations = 210000
	pbkdf2SaltSize   = 32
)

// derivePassword computes the deterministic off-chain password for a
// block, reproducible from committed block fields alone:
// base64(sha3_256("OFFCHAIN_" + blockNumber + "_" + signerPublicKey))[:32]
func derivePassword(blockNumber int64, signerPublicKey string) string {
	input := fmt.Sprintf("OFFCHAIN_%d_%s", blockNumber, signerPublicKey)
	sum := sha3.Sum256([]byte(input))
	encoded := base64.StdEncoding.EncodeToString(sum[:])
	if len(encoded) > 32 {
		encoded = encoded[:32]
	}
	return encoded
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, gcmKeySize, sha512.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, gcmNonceSize)
	if err != nil {
		return nil, fmt.Errorf("new GCM: %w", err)
	}
	return gcm, nil
}

// frameNonce derives the per-frame nonce from the random base IV, the
// frame's zero-based index, and whether it is the final frame.
func frameNonce(baseIV []byte, index uint64, final bool) []byte {
	nonce := make([]byte, gcmNonceSize)
	copy(nonce, baseIV)
	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], index)
	for i := 0; i < 8; i++ {
		nonce[4+i] ^= counter[i]
	}
	if final {
		nonce[0] ^= 0x80
	}
	return nonce
}

func frameAAD(index uint64, final bool) []byte {
	aad := make([]byte, 9)
	binary.BigEndian.PutUint64(aad[:8], index)
	if final {
		aad[8] = 1
	}
	return aad
}

// streamEncrypt reads plaintext from r in chunkSize frames, writes framed,
// sealed ciphertext to w, and returns the plaintext's SHA3-256 hash and
// total byte length. Each frame on disk is a 4-byte big-endian length
// prefix followed by the sealed bytes (ciphertext + 16-byte GCM tag).
func streamEncrypt(w io.Writer, r io.Reader, gcm cipher.AEAD, baseIV []byte) (dataHash [32]byte, size int64, err error) {
	hasher := sha3.New256()
	buf := make([]byte, chunkSize)
	var index uint64
	var total int64

	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			hasher.Write(buf[:n])
			total += int64(n)
		}
		isEOF := readErr == io.EOF || readErr == io.ErrUnexpectedEOF
		if readErr != nil && !isEOF {
			return dataHash, 0, fmt.Errorf("read plaintext: %w", readErr)
		}

		// A frame is final when the read came up short of a full chunk.
		final := n < chunkSize
		if n > 0 || final {
			nonce := frameNonce(baseIV, index, final)
			sealed := gcm.Seal(nil, nonce, buf[:n], frameAAD(index, final))
			if err := writeFrame(w, sealed); err != nil {
				return dataHash, 0, err
			}
			index++
		}
		if final {
			break
		}
	}

	copy(dataHash[:], hasher.Sum(nil))
	return dataHash, total, nil
}

// streamDecrypt reverses streamEncrypt, verifying each frame's GCM tag and
// the final-frame marker, and writing verified plaintext to w. It returns
// the plaintext's SHA3-256 hash for comparison against the stored
// OffChainData.dataHash.
func streamDecrypt(w io.Writer, r io.Reader, gcm cipher.AEAD, baseIV []byte) (dataHash [32]byte, err error) {
	hasher := sha3.New256()
	var index uint64
	sawFinal := false

	for {
		sealed, frameErr := readFrame(r)
		if frameErr == io.EOF {
			break
		}
		if frameErr != nil {
			return dataHash, fmt.Errorf("read frame %d: %w", index, frameErr)
		}
		if sawFinal {
			return dataHash, fmt.Errorf("data after final frame at index %d", index)
		}

		var plain []byte
		var opened bool
		for _, final := range [2]bool{false, true} {
			nonce := frameNonce(baseIV, index, final)
			if p, openErr := gcm.Open(nil, nonce, sealed, frameAAD(index, final)); openErr == nil {
				plain = p
				sawFinal = final
				opened = true
				break
			}
		}
		if !opened {
			return dataHash, fmt.Errorf("integrity check failed at frame %d", index)
		}

		if _, err := w.Write(plain); err != nil {
			return dataHash, fmt.Errorf("write plaintext: %w", err)
		}
		hasher.Write(plain)
		index++
	}

	if !sawFinal {
		return dataHash, fmt.Errorf("integrity check failed: stream truncated before final frame")
	}

	copy(dataHash[:], hasher.Sum(nil))
	return dataHash, nil
}

func writeFrame(w io.Writer, sealed []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(sealed)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(sealed); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("truncated frame header")
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("truncated frame body: %w", err)
	}
	return body, nil
}
