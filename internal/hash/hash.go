// Package hash computes BLAKE3 content digests of geometry containers.
package hash

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Size is the byte length of a Digest.
const Size = 32

// Digest is a BLAKE3-256 content digest.
type Digest [Size]byte

// String returns the lowercase hex form.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Parse decodes a hex digest produced by Digest.String.
func Parse(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("invalid digest %q: %w", s, err)
	}
	if len(b) != Size {
		return d, fmt.Errorf("invalid digest %q: want %d bytes, got %d", s, Size, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// Bytes digests an in-memory container.
func Bytes(data []byte) Digest {
	return blake3.Sum256(data)
}

// Reader digests everything read from r and returns the byte count.
func Reader(r io.Reader) (Digest, int64, error) {
	buf := readPool.Get(readChunk)
	defer readPool.Put(buf)

	h := blake3.New()
	n, err := io.CopyBuffer(h, r, buf)
	if err != nil {
		return Digest{}, n, fmt.Errorf("failed to hash data: %w", err)
	}
	var d Digest
	h.Sum(d[:0])
	return d, n, nil
}

// File digests the file at path.
func File(path string) (Digest, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, 0, fmt.Errorf("failed to open file '%s': %w", path, err)
	}
	defer f.Close()

	d, n, err := Reader(f)
	if err != nil {
		return Digest{}, n, fmt.Errorf("failed to read file '%s': %w", path, err)
	}
	return d, n, nil
}

const readChunk = 1 << 20

var readPool = NewBufferPool(BufferPoolOptions{
	MaxBufferSize: readChunk,
	PoolName:      "read",
})
