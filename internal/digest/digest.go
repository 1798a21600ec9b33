// Package digest computes content digests used to record package artifact
// identity at load time.
package digest

import (
	"crypto/sha1" //nolint:gosec // content identity, not a security boundary
	"fmt"
	"io"
	"os"
)

// Size is the fixed width, in bytes, of a Sum.
const Size = sha1.Size

// chunkSize is the read buffer used while streaming a file into the hash.
const chunkSize = 64 * 1024

// Sum is a fixed-width SHA-1 content digest.
type Sum [Size]byte

// String renders the digest as lowercase hex.
func (s Sum) String() string {
	return fmt.Sprintf("%x", [Size]byte(s))
}

// File streams path in 64 KiB chunks and returns its SHA-1 digest.
func File(path string) (Sum, error) {
	f, err := os.Open(path)
	if err != nil {
		return Sum{}, fmt.Errorf("package file unreadable: %w", err)
	}
	defer f.Close()

	h := sha1.New() //nolint:gosec // content identity, not a security boundary
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return Sum{}, fmt.Errorf("package file unreadable: %w", err)
	}

	var out Sum
	copy(out[:], h.Sum(nil))
	return out, nil
}
