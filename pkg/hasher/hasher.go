// Package hasher computes the xxhash64 digests recorded in journal entries.
package hasher

import (
	"fmt"
	"hash"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
)

// New returns a streaming digest; pass its Sum64 to Format.
func New() hash.Hash64 {
	return xxhash.New()
}

// Format renders a digest as 16 lowercase hex digits.
func Format(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}

// File hashes the content of path.
func File(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return Format(h.Sum64()), nil
}

// Bytes hashes an in-memory buffer.
func Bytes(b []byte) string {
	return Format(xxhash.Sum64(b))
}
