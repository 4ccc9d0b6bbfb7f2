// Package fingerprint computes content fingerprints for deduplication.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Compute returns the SHA-256 digest of the raw file bytes as a lowercase
// hex string. Identical bytes always fingerprint identically, regardless
// of filename or metadata.
func Compute(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
