package storage

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// BloomFilter answers "possibly seen" for content keys such as digests of
// scanned containers. It is safe for concurrent use.
type BloomFilter struct {
	mu      sync.Mutex
	bits    []byte
	numHash uint
}

// NewBloomFilter returns a filter of size bits probed numHash times per key.
func NewBloomFilter(size uint, numHash uint) *BloomFilter {
	if size == 0 {
		size = 8
	}
	if numHash == 0 {
		numHash = 1
	}
	return &BloomFilter{
		bits:    make([]byte, (size+7)/8),
		numHash: numHash,
	}
}

// NewBloomFilterFor sizes a filter at ten bits and four probes per expected
// key.
func NewBloomFilterFor(expected int) *BloomFilter {
	return NewBloomFilter(uint(max(expected, 1)*10), 4)
}

func (b *BloomFilter) probes(data []byte, fn func(idx uint64) bool) {
	h1 := xxhash.Sum64(data)
	h2 := murmur3.Sum64(data)
	nbits := uint64(len(b.bits) * 8)
	for i := uint(0); i < b.numHash; i++ {
		if !fn((h1 + uint64(i)*h2) % nbits) {
			return
		}
	}
}

// Add records data.
func (b *BloomFilter) Add(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.add(data)
}

func (b *BloomFilter) add(data []byte) {
	b.probes(data, func(idx uint64) bool {
		b.bits[idx/8] |= 1 << (idx % 8)
		return true
	})
}

// Contains reports whether data may have been added. False is definite.
func (b *BloomFilter) Contains(data []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.contains(data)
}

func (b *BloomFilter) contains(data []byte) bool {
	found := true
	b.probes(data, func(idx uint64) bool {
		if b.bits[idx/8]&(1<<(idx%8)) == 0 {
			found = false
		}
		return found
	})
	return found
}

// TestAndAdd records data and reports whether it may have been seen
// before, as one atomic step.
func (b *BloomFilter) TestAndAdd(data []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := b.contains(data)
	b.add(data)
	return seen
}
