// Package checksum computes the content digests recorded for stored bundles.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumReader digests r to EOF and returns the hex digest and the number of
// bytes read.
func SumReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, fmt.Errorf("checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ETag formats a digest as a strong HTTP entity tag.
func ETag(sum string) string {
	return `"` + sum + `"`
}
