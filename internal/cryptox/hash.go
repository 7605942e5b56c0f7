// Package cryptox computes content digests of stored blobs.
package cryptox

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// ContentHash returns the hex BLAKE2b-256 digest of data.
func ContentHash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ETag returns the strong entity tag of data, quoted as HTTP expects.
func ETag(data []byte) string {
	return `"` + ContentHash(data) + `"`
}
