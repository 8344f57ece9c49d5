// Package meshcache holds decoded meshes behind opaque integer handles so
// that layout queries and buffer writes can be issued as separate calls
// without decoding twice.
package meshcache

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/TFMV/meshbuf/internal/geometry"
	"github.com/TFMV/meshbuf/internal/layout"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
)

// Handle identifies one cached mesh. Zero is never issued.
type Handle uint64

// InvalidHandle is the reserved "no mesh" handle.
const InvalidHandle Handle = 0

var (
	// ErrNotFound is returned for handles that are not present.
	ErrNotFound = errors.New("mesh handle not found")
	// ErrClosed is returned by Insert after Close.
	ErrClosed = errors.New("mesh cache closed")
	// ErrExhausted is returned when no unused handle remains.
	ErrExhausted = errors.New("mesh handles exhausted")
)

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger log.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegisterer registers the cache metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Cache) {
		c.reg = reg
	}
}

// Cache maps handles to decoded meshes. Reads run under a shared lock for
// their whole duration, so a concurrent Release waits for them to finish.
// A mesh is never modified after insertion.
type Cache struct {
	mu      sync.RWMutex
	entries map[Handle]geometry.Mesh
	last    Handle
	closed  bool

	logger  log.Logger
	reg     prometheus.Registerer
	metrics *metrics
}

// New returns an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[Handle]geometry.Mesh),
		logger:  log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.metrics = newMetrics(c.reg)
	return c
}

// Insert takes ownership of m and returns a fresh handle for it. Handles
// increase monotonically and are never reused, even after release.
func (c *Cache) Insert(m geometry.Mesh) (Handle, error) {
	if m == nil {
		return InvalidHandle, errors.New("insert: nil mesh")
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return InvalidHandle, ErrClosed
	}
	if c.last == ^Handle(0) {
		c.mu.Unlock()
		return InvalidHandle, ErrExhausted
	}
	c.last++
	h := c.last
	c.entries[h] = m
	c.metrics.entries.Set(float64(len(c.entries)))
	c.mu.Unlock()

	c.metrics.inserts.Inc()
	level.Debug(c.logger).Log("msg", "mesh cached", "handle", h, "points", m.NumPoints(), "faces", m.NumFaces())
	return h, nil
}

// Release drops the entry for h. Releasing an absent handle is a no-op.
// A mesh implementing io.Closer is closed once no reader holds it.
func (c *Cache) Release(h Handle) {
	c.mu.Lock()
	m, ok := c.entries[h]
	if ok {
		delete(c.entries, h)
		c.metrics.entries.Set(float64(len(c.entries)))
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	c.metrics.releases.Inc()
	closeMesh(c.logger, h, m)
	level.Debug(c.logger).Log("msg", "mesh released", "handle", h)
}

// View runs fn against the mesh for h while holding the shared lock. The
// mesh must not be retained after fn returns.
func (c *Cache) View(h Handle, fn func(geometry.Mesh) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[h]
	if !ok {
		c.metrics.misses.Inc()
		return fmt.Errorf("%w: %d", ErrNotFound, h)
	}
	return fn(m)
}

// Layout plans the output buffer of the mesh for h.
func (c *Cache) Layout(h Handle) (*layout.Layout, error) {
	var l *layout.Layout
	err := c.View(h, func(m geometry.Mesh) error {
		l = layout.Plan(m)
		return nil
	})
	return l, err
}

// Write serializes the mesh for h into dst and returns the bytes written.
func (c *Cache) Write(h Handle, dst []byte) (int, error) {
	var n int
	err := c.View(h, func(m geometry.Mesh) error {
		var err error
		n, err = layout.Write(m, dst)
		return err
	})
	if err != nil {
		return 0, err
	}
	c.metrics.writtenBytes.Add(float64(n))
	return n, nil
}

// Contains reports whether h is present.
func (c *Cache) Contains(h Handle) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[h]
	return ok
}

// Len returns the number of cached meshes.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close releases every entry and rejects further inserts. Lookups keep
// working and report ErrNotFound.
func (c *Cache) Close() error {
	c.mu.Lock()
	c.closed = true
	entries := c.entries
	c.entries = make(map[Handle]geometry.Mesh)
	c.metrics.entries.Set(0)
	c.mu.Unlock()

	for h, m := range entries {
		c.metrics.releases.Inc()
		closeMesh(c.logger, h, m)
	}
	return nil
}

func closeMesh(logger log.Logger, h Handle, m geometry.Mesh) {
	if cl, ok := m.(io.Closer); ok {
		if err := cl.Close(); err != nil {
			level.Warn(logger).Log("msg", "failed to close mesh", "handle", h, "err", err)
		}
	}
}
