// Command capi builds meshbuf as a C shared library:
//
//	go build -buildmode=c-shared -o libmeshbuf.so ./capi
//
// Every export reports failure through its return value (NULL, 0 or
// false); nothing panics across the boundary.
package main

/*
#include <stdbool.h>
#include <stddef.h>
#include <stdint.h>
#include <stdlib.h>

typedef struct {
	uint32_t dim;
	uint32_t data_type;
	uint32_t offset;
	uint32_t length;
	int32_t unique_id;
} meshbuf_attribute;

typedef struct {
	uint32_t vertex_count;
	uint32_t index_count;
	uint32_t index_length;
	uint32_t attribute_count;
} meshbuf_config;
*/
import "C"

import (
	"os"
	"sync"
	"unsafe"

	"github.com/TFMV/meshbuf/internal/bridge"
	"github.com/TFMV/meshbuf/internal/codec"
	"github.com/TFMV/meshbuf/internal/config"
	"github.com/TFMV/meshbuf/internal/logging"
	"github.com/TFMV/meshbuf/internal/meshcache"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

var logger kitlog.Logger = kitlog.NewNopLogger()

// service is the process-wide bridge, configured from MESHBUF_*
// environment variables on first use.
var service = sync.OnceValue(func() *bridge.Service {
	cfg, err := config.NewLoader().Load()
	if err != nil {
		cfg = config.Default()
	}
	if l, err := logging.New(os.Stderr, cfg.Log.Level); err == nil {
		logger = l
	}
	dec, err := codec.NewDecoder(codec.WithMaxPayload(cfg.Decode.MaxPayload))
	if err != nil {
		level.Error(logger).Log("msg", "failed to create decoder", "err", err)
		return nil
	}
	cache := meshcache.New(meshcache.WithLogger(logger))
	return bridge.New(dec, cache, bridge.WithLogger(logger))
})

func guard(op string) {
	if r := recover(); r != nil {
		level.Error(logger).Log("msg", "recovered panic", "op", op, "panic", r)
	}
}

func bytesOf(p *C.uint8_t, n C.size_t) []byte {
	if p == nil || n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), int(n))
}

//export meshbuf_decode_point_cloud
func meshbuf_decode_point_cloud(data *C.uint8_t, dataLen C.size_t, outLen *C.size_t) (out *C.uint8_t) {
	defer guard("decode_point_cloud")
	if outLen != nil {
		*outLen = 0
	}
	s := service()
	if s == nil {
		return nil
	}
	xyz := s.DecodePointCloud(bytesOf(data, dataLen))
	if len(xyz) == 0 {
		return nil
	}
	buf := C.malloc(C.size_t(len(xyz)))
	if buf == nil {
		return nil
	}
	copy(unsafe.Slice((*byte)(buf), len(xyz)), xyz)
	if outLen != nil {
		*outLen = C.size_t(len(xyz))
	}
	return (*C.uint8_t)(buf)
}

//export meshbuf_free
func meshbuf_free(p unsafe.Pointer) {
	C.free(p)
}

//export meshbuf_decode_mesh_direct_write
func meshbuf_decode_mesh_direct_write(data *C.uint8_t, dataLen C.size_t, out *C.uint8_t, outLen C.size_t) (n C.size_t) {
	defer guard("decode_mesh_direct_write")
	s := service()
	if s == nil {
		return 0
	}
	return C.size_t(s.DecodeMeshDirectWrite(bytesOf(data, dataLen), bytesOf(out, outLen)))
}

//export meshbuf_debug_mesh_buffer_len
func meshbuf_debug_mesh_buffer_len(data *C.uint8_t, dataLen C.size_t) (n C.size_t) {
	defer guard("debug_mesh_buffer_len")
	s := service()
	if s == nil {
		return 0
	}
	return C.size_t(s.DebugMeshBufferLen(bytesOf(data, dataLen)))
}

//export meshbuf_cache_mesh
func meshbuf_cache_mesh(data *C.uint8_t, dataLen C.size_t) (h C.uint64_t) {
	defer guard("cache_mesh")
	s := service()
	if s == nil {
		return 0
	}
	return C.uint64_t(s.CacheMesh(bytesOf(data, dataLen)))
}

//export meshbuf_release_mesh_cache
func meshbuf_release_mesh_cache(handle C.uint64_t) {
	defer guard("release_mesh_cache")
	if s := service(); s != nil {
		s.ReleaseMeshCache(uint64(handle))
	}
}

// meshbuf_get_mesh_config fills cfg and up to attrsCap entries of attrs.
// cfg.attribute_count is always the full attribute count, so a caller can
// retry with a larger array.
//
//export meshbuf_get_mesh_config
func meshbuf_get_mesh_config(handle C.uint64_t, cfg *C.meshbuf_config, attrs *C.meshbuf_attribute, attrsCap C.size_t) (found C.bool) {
	defer guard("get_mesh_config")
	s := service()
	if s == nil || cfg == nil {
		return false
	}
	mc, ok := s.GetMeshConfig(uint64(handle))
	if !ok {
		return false
	}
	cfg.vertex_count = C.uint32_t(mc.VertexCount)
	cfg.index_count = C.uint32_t(mc.IndexCount)
	cfg.index_length = C.uint32_t(mc.IndexLength)
	cfg.attribute_count = C.uint32_t(len(mc.Attributes))
	if attrs != nil && attrsCap > 0 {
		dst := unsafe.Slice(attrs, int(attrsCap))
		for i, a := range mc.Attributes {
			if i >= len(dst) {
				break
			}
			dst[i] = C.meshbuf_attribute{
				dim:       C.uint32_t(a.Dim),
				data_type: C.uint32_t(a.DataType),
				offset:    C.uint32_t(a.Offset),
				length:    C.uint32_t(a.Length),
				unique_id: C.int32_t(a.UniqueID),
			}
		}
	}
	return true
}

//export meshbuf_decode_mesh_to_buffer
func meshbuf_decode_mesh_to_buffer(handle C.uint64_t, out *C.uint8_t, outLen C.size_t) (n C.size_t) {
	defer guard("decode_mesh_to_buffer")
	s := service()
	if s == nil {
		return 0
	}
	return C.size_t(s.DecodeMeshToBuffer(uint64(handle), bytesOf(out, outLen)))
}

func main() {}
