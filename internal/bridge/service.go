// Package bridge exposes the decode, cache and buffer operations with the
// flat result conventions used across a foreign function boundary: failures
// come back as an empty slice, a zero handle, a zero length or false, and
// the cause is logged.
package bridge

import (
	"github.com/TFMV/meshbuf/internal/geometry"
	"github.com/TFMV/meshbuf/internal/layout"
	"github.com/TFMV/meshbuf/internal/logging"
	"github.com/TFMV/meshbuf/internal/meshcache"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Service runs boundary operations against a decoder and a mesh cache.
// It is safe for concurrent use.
type Service struct {
	decoder geometry.Decoder
	cache   *meshcache.Cache
	logger  log.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger that records collapsed failures.
func WithLogger(logger log.Logger) Option {
	return func(s *Service) {
		s.logger = logging.OrNop(logger)
	}
}

// New returns a Service. The cache is owned by the caller.
func New(decoder geometry.Decoder, cache *meshcache.Cache, opts ...Option) *Service {
	s := &Service{
		decoder: decoder,
		cache:   cache,
		logger:  log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache returns the mesh cache backing the handle operations.
func (s *Service) Cache() *meshcache.Cache {
	return s.cache
}

func (s *Service) fail(op string, err error, keyvals ...interface{}) {
	kv := append([]interface{}{"msg", "operation failed", "op", op, "err", err}, keyvals...)
	level.Debug(s.logger).Log(kv...)
}

// DecodePointCloud decodes a point cloud and returns its positions as three
// native-endian float32 values per point, in point order. It returns nil on
// any decode failure or when there is no position attribute.
func (s *Service) DecodePointCloud(data []byte) []byte {
	pc, err := s.decoder.DecodePointCloud(data)
	if err != nil {
		s.fail("decode_point_cloud", err)
		return nil
	}
	xyz, err := geometry.Positions(pc)
	if err != nil {
		s.fail("decode_point_cloud", err, "points", pc.NumPoints())
		return nil
	}
	out := make([]byte, len(xyz)*4)
	c := layout.NewCursor(out)
	for _, f := range xyz {
		c.WriteFloat32(f)
	}
	return out
}

// DecodeMeshDirectWrite decodes a mesh and writes its buffer into dst
// without caching it. It returns the bytes written or 0.
func (s *Service) DecodeMeshDirectWrite(data, dst []byte) int {
	m, err := s.decoder.DecodeMesh(data)
	if err != nil {
		s.fail("decode_mesh_direct_write", err)
		return 0
	}
	defer closeMesh(m)
	n, err := layout.Write(m, dst)
	if err != nil {
		s.fail("decode_mesh_direct_write", err, "capacity", len(dst))
		return 0
	}
	return n
}

// DebugMeshBufferLen decodes a mesh and returns the size of its buffer, or
// 0 when decoding fails.
func (s *Service) DebugMeshBufferLen(data []byte) int {
	m, err := s.decoder.DecodeMesh(data)
	if err != nil {
		s.fail("debug_mesh_buffer_len", err)
		return 0
	}
	defer closeMesh(m)
	return int(layout.PredictSize(m))
}

// CacheMesh decodes a mesh into the cache and returns its handle, or 0.
func (s *Service) CacheMesh(data []byte) uint64 {
	m, err := s.decoder.DecodeMesh(data)
	if err != nil {
		s.fail("cache_mesh", err)
		return 0
	}
	h, err := s.cache.Insert(m)
	if err != nil {
		closeMesh(m)
		s.fail("cache_mesh", err)
		return 0
	}
	return uint64(h)
}

// ReleaseMeshCache drops a cached mesh. Unknown handles are ignored.
func (s *Service) ReleaseMeshCache(handle uint64) {
	s.cache.Release(meshcache.Handle(handle))
}

// GetMeshConfig reports the buffer layout of a cached mesh. found is false
// for unknown handles, and also for a present handle whose layout does not
// fit the 32-bit config fields; that case is logged at warn level and
// Layout still reports it.
func (s *Service) GetMeshConfig(handle uint64) (cfg MeshConfig, found bool) {
	l, ok := s.Layout(handle)
	if !ok {
		return MeshConfig{}, false
	}
	cfg, err := configFromLayout(l)
	if err != nil {
		level.Warn(s.logger).Log("msg", "layout exceeds 32-bit config", "op", "get_mesh_config", "handle", handle, "err", err)
		return MeshConfig{}, false
	}
	return cfg, true
}

// Layout returns the full planned layout of a cached mesh, including the
// true element type of every attribute.
func (s *Service) Layout(handle uint64) (*layout.Layout, bool) {
	l, err := s.cache.Layout(meshcache.Handle(handle))
	if err != nil {
		s.fail("layout", err, "handle", handle)
		return nil, false
	}
	return l, true
}

// DecodeMeshToBuffer writes the buffer of a cached mesh into dst. It
// returns 0 when the handle is unknown or dst is too small.
func (s *Service) DecodeMeshToBuffer(handle uint64, dst []byte) int {
	n, err := s.cache.Write(meshcache.Handle(handle), dst)
	if err != nil {
		s.fail("decode_mesh_to_buffer", err, "handle", handle, "capacity", len(dst))
		return 0
	}
	return n
}

// MeshDecodeResult is a decoded buffer with its layout.
type MeshDecodeResult struct {
	Data   []byte
	Config MeshConfig
}

// DecodeMeshWithConfig decodes a mesh through the cache, sizes a buffer
// from its config, fills it and releases the handle.
func (s *Service) DecodeMeshWithConfig(data []byte) (*MeshDecodeResult, bool) {
	cm, ok := s.OpenCachedMesh(data)
	if !ok {
		return nil, false
	}
	defer cm.Close()

	cfg, ok := cm.Config()
	if !ok {
		return nil, false
	}
	buf := make([]byte, cfg.EstimateBufferSize())
	n, ok := cm.DecodeTo(buf)
	if !ok && len(buf) > 0 {
		return nil, false
	}
	return &MeshDecodeResult{Data: buf[:n], Config: cfg}, true
}

// DecodeMesh decodes a mesh into a new buffer of cfg.EstimateBufferSize()
// bytes. It returns nil when decoding fails or the buffer is too small.
func (s *Service) DecodeMesh(data []byte, cfg *MeshConfig) []byte {
	buf := make([]byte, cfg.EstimateBufferSize())
	n := s.DecodeMeshDirectWrite(data, buf)
	if n == 0 && len(buf) > 0 {
		return nil
	}
	return buf[:n]
}

// CachedMesh owns one cache handle until Close.
type CachedMesh struct {
	s      *Service
	handle uint64
	closed bool
}

// OpenCachedMesh decodes data into the cache.
func (s *Service) OpenCachedMesh(data []byte) (*CachedMesh, bool) {
	h := s.CacheMesh(data)
	if h == 0 {
		return nil, false
	}
	return &CachedMesh{s: s, handle: h}, true
}

// Handle returns the cache handle.
func (c *CachedMesh) Handle() uint64 { return c.handle }

// Config reports the buffer layout.
func (c *CachedMesh) Config() (MeshConfig, bool) {
	return c.s.GetMeshConfig(c.handle)
}

// DecodeTo writes the buffer into dst.
func (c *CachedMesh) DecodeTo(dst []byte) (int, bool) {
	n := c.s.DecodeMeshToBuffer(c.handle, dst)
	return n, n > 0
}

// Close releases the handle. It is safe to call more than once.
func (c *CachedMesh) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.s.ReleaseMeshCache(c.handle)
	return nil
}

func closeMesh(m geometry.Mesh) {
	if c, ok := m.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}
