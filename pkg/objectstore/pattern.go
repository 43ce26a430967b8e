// Copyright 2025 Ledgercore Contributors

package objectstore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// filenamePattern matches exactly the layout spec.md §4.3 requires:
// offchain_<epochMillis>_<rand>.dat. Anything else found in the off-chain
// directory is treated as external and left alone by cleanup.
var filenamePattern = regexp.MustCompile(`^offchain_[0-9]+_[0-9a-f]{16}\.dat$`)

// newFilename generates a fresh, pattern-conforming filename for a new
// off-chain file written at the given epoch-millis timestamp.
func newFilename(epochMillis int64) (string, error) {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return "", fmt.Errorf("generate random suffix: %w", err)
	}
	return fmt.Sprintf("offchain_%d_%s.dat", epochMillis, hex.EncodeToString(randBytes)), nil
}

// isManagedFilename reports whether name matches the strict off-chain
// filename pattern.
func isManagedFilename(name string) bool {
	return filenamePattern.MatchString(name)
}

// resolveWithinDir joins dir and name, then verifies the result's
// canonical path still lives inside dir. This is the guard spec.md §4.3
// requires before any unlink: "canonical(path).startsWith(canonical(off-chain-dir))".
func resolveWithinDir(dir, name string) (string, error) {
	if !isManagedFilename(name) {
		return "", fmt.Errorf("filename %q does not match the managed pattern", name)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve directory: %w", err)
	}
	candidate := filepath.Join(absDir, name)
	absCandidate, err := filepath.Abs(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve candidate path: %w", err)
	}
	rel, err := filepath.Rel(absDir, absCandidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %q escapes off-chain directory", name)
	}
	return absCandidate, nil
}
