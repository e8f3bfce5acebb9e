// Package checksum computes content fingerprints for files and metadata records.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Tagged returns the digest in the "sha256:<hex>" form stored in FileEntry.Hash.
func Tagged(data []byte) string {
	return "sha256:" + Sum(data)
}

// Equal compares two fingerprints, tolerating the optional algorithm prefix.
func Equal(a, b string) bool {
	return strip(a) == strip(b)
}

func strip(s string) string {
	return strings.TrimPrefix(s, "sha256:")
}
