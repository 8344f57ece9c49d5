package hash

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// BufferPoolMetrics is a snapshot of pool activity.
type BufferPoolMetrics struct {
	Name              string
	Gets              uint64
	Puts              uint64
	NewAllocations    uint64
	ResizeAllocations uint64
	RejectedBuffers   uint64 // larger than MaxBufferSize
}

// String formats the metrics for display.
func (m BufferPoolMetrics) String() string {
	return fmt.Sprintf(
		"BufferPool '%s': gets=%d puts=%d new=%d resized=%d rejected=%d",
		m.Name, m.Gets, m.Puts, m.NewAllocations, m.ResizeAllocations, m.RejectedBuffers,
	)
}

// BufferPoolOptions configures a BufferPool.
type BufferPoolOptions struct {
	// MaxBufferSize is the largest capacity kept for reuse. Larger buffers
	// are handed out but dropped on Put.
	MaxBufferSize int
	PoolName      string
}

// DefaultBufferPoolOptions keeps buffers up to 64 MiB.
func DefaultBufferPoolOptions() BufferPoolOptions {
	return BufferPoolOptions{
		MaxBufferSize: 64 << 20,
		PoolName:      "default",
	}
}

// BufferPool recycles destination buffers of varying size, such as the
// output buffers of successive mesh decodes.
type BufferPool struct {
	pool    sync.Pool
	name    string
	maxSize int

	gets, puts, allocs, resizes, rejected atomic.Uint64
}

// NewBufferPool returns an empty pool.
func NewBufferPool(options BufferPoolOptions) *BufferPool {
	if options.MaxBufferSize <= 0 {
		options.MaxBufferSize = DefaultBufferPoolOptions().MaxBufferSize
	}
	return &BufferPool{
		name:    options.PoolName,
		maxSize: options.MaxBufferSize,
	}
}

// Get returns a buffer of length n. Its contents are unspecified.
func (bp *BufferPool) Get(n int) []byte {
	bp.gets.Add(1)
	p, ok := bp.pool.Get().(*[]byte)
	if !ok {
		bp.allocs.Add(1)
		return make([]byte, n)
	}
	if cap(*p) < n {
		bp.resizes.Add(1)
		return make([]byte, n)
	}
	return (*p)[:n]
}

// Put returns buf for reuse. buf must not be used afterwards.
func (bp *BufferPool) Put(buf []byte) {
	bp.puts.Add(1)
	if cap(buf) == 0 {
		return
	}
	if cap(buf) > bp.maxSize {
		bp.rejected.Add(1)
		return
	}
	buf = buf[:0]
	bp.pool.Put(&buf)
}

// Metrics returns a snapshot of the pool counters.
func (bp *BufferPool) Metrics() BufferPoolMetrics {
	return BufferPoolMetrics{
		Name:              bp.name,
		Gets:              bp.gets.Load(),
		Puts:              bp.puts.Load(),
		NewAllocations:    bp.allocs.Load(),
		ResizeAllocations: bp.resizes.Load(),
		RejectedBuffers:   bp.rejected.Load(),
	}
}

// DefaultBufferPool is shared by callers that do not need their own pool.
var DefaultBufferPool = NewBufferPool(DefaultBufferPoolOptions())

// GetBuffer takes a buffer of length n from the default pool.
func GetBuffer(n int) []byte {
	return DefaultBufferPool.Get(n)
}

// PutBuffer returns a buffer to the default pool.
func PutBuffer(buf []byte) {
	DefaultBufferPool.Put(buf)
}
