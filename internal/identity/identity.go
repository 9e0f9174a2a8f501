// Package identity derives stable explanation identifiers from content paths.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// Derive returns the explanation id for a content path: the hex-encoded
// SHA-256 digest of the slash-normalized path. The id depends only on the
// path, never on file content, so rewriting a file keeps its id and renaming
// a file produces a new one.
func Derive(path string) string {
	h := sha256.Sum256([]byte(filepath.ToSlash(path)))
	return hex.EncodeToString(h[:])
}

// Checksum returns the hex-encoded SHA-256 digest of data.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
