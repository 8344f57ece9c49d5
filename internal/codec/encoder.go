package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/TFMV/meshbuf/internal/geometry"
	"github.com/TFMV/meshbuf/schema/meshbuf"
	"github.com/cespare/xxhash/v2"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
)

// builderPool is a pool of FlatBuffers builders to reduce allocations
var builderPool = sync.Pool{
	New: func() interface{} {
		return flatbuffers.NewBuilder(1024)
	},
}

func getBuilder() *flatbuffers.Builder {
	return builderPool.Get().(*flatbuffers.Builder)
}

func putBuilder(builder *flatbuffers.Builder) {
	builder.Reset()
	builderPool.Put(builder)
}

// Encoder writes MGEO containers. It is safe for concurrent use.
type Encoder struct {
	zw *zstd.Encoder
}

// NewEncoder creates an Encoder compressing at the given zstd level.
func NewEncoder(level zstd.EncoderLevel) (*Encoder, error) {
	zw, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return &Encoder{zw: zw}, nil
}

// Close releases the compressor.
func (e *Encoder) Close() error {
	return e.zw.Close()
}

// EncodeMesh serializes m, faces included.
func (e *Encoder) EncodeMesh(m geometry.Mesh) ([]byte, error) {
	return e.encode(m, m, meshbuf.GeometryKindMesh)
}

// EncodePointCloud serializes pc without faces.
func (e *Encoder) EncodePointCloud(pc geometry.PointCloud) ([]byte, error) {
	return e.encode(pc, nil, meshbuf.GeometryKindPointCloud)
}

func (e *Encoder) encode(pc geometry.PointCloud, m geometry.Mesh, kind meshbuf.GeometryKind) ([]byte, error) {
	builder := getBuilder()
	defer putBuilder(builder)

	attrOffsets := make([]flatbuffers.UOffsetT, pc.NumAttributes())
	for i := range attrOffsets {
		off, err := buildAttribute(builder, pc.Attribute(i), pc.NumPoints())
		if err != nil {
			return nil, err
		}
		attrOffsets[i] = off
	}

	meshbuf.GeometryStartAttributesVector(builder, len(attrOffsets))
	for i := len(attrOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(attrOffsets[i])
	}
	attrsVector := builder.EndVector(len(attrOffsets))

	var facesVector flatbuffers.UOffsetT
	if m != nil {
		n := int(m.NumFaces())
		meshbuf.GeometryStartFacesVector(builder, n*3)
		for i := n - 1; i >= 0; i-- {
			f := m.Face(uint32(i))
			for k := 2; k >= 0; k-- {
				builder.PrependUint32(uint32(f[k]))
			}
		}
		facesVector = builder.EndVector(n * 3)
	}

	meshbuf.GeometryStart(builder)
	meshbuf.GeometryAddKind(builder, kind)
	meshbuf.GeometryAddNumPoints(builder, pc.NumPoints())
	if m != nil {
		meshbuf.GeometryAddFaces(builder, facesVector)
	}
	meshbuf.GeometryAddAttributes(builder, attrsVector)
	builder.Finish(meshbuf.GeometryEnd(builder))

	raw := builder.FinishedBytes()
	if uint64(len(raw)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(raw))
	}
	h := Header{
		Version:   Version,
		Kind:      kind,
		RawLength: uint32(len(raw)),
		Checksum:  xxhash.Sum64(raw),
	}
	out := h.AppendTo(make([]byte, 0, HeaderSize+len(raw)/2))
	return e.zw.EncodeAll(raw, out), nil
}

// buildAttribute writes one attribute table. Packed attributes are copied
// as stored; other implementations are sampled point by point.
func buildAttribute(builder *flatbuffers.Builder, a geometry.Attribute, numPoints uint32) (flatbuffers.UOffsetT, error) {
	var (
		values     []byte
		mapping    []uint32
		normalized bool
	)
	if pa, ok := a.(*geometry.PointAttribute); ok {
		values, mapping, normalized = pa.Values(), pa.Mapping(), pa.Normalized()
	} else {
		var err error
		if values, err = sampleValues(a, numPoints); err != nil {
			return 0, err
		}
	}

	valuesOffset := builder.CreateByteVector(values)
	var mappingOffset flatbuffers.UOffsetT
	if len(mapping) > 0 {
		meshbuf.AttributeStartMappingVector(builder, len(mapping))
		for i := len(mapping) - 1; i >= 0; i-- {
			builder.PrependUint32(mapping[i])
		}
		mappingOffset = builder.EndVector(len(mapping))
	}

	meshbuf.AttributeStart(builder)
	meshbuf.AttributeAddUniqueId(builder, a.UniqueID())
	meshbuf.AttributeAddKind(builder, byte(a.Kind()))
	meshbuf.AttributeAddDataType(builder, byte(a.DataType()))
	meshbuf.AttributeAddNumComponents(builder, byte(a.NumComponents()))
	meshbuf.AttributeAddNormalized(builder, normalized)
	meshbuf.AttributeAddValues(builder, valuesOffset)
	if len(mapping) > 0 {
		meshbuf.AttributeAddMapping(builder, mappingOffset)
	}
	return meshbuf.AttributeEnd(builder), nil
}

func sampleValues(a geometry.Attribute, numPoints uint32) ([]byte, error) {
	dt := a.DataType()
	size := dt.Size()
	if size == 0 {
		return nil, fmt.Errorf("attribute %d: unsupported data type %s", a.UniqueID(), dt)
	}
	out := make([]byte, 0, int(numPoints)*a.NumComponents()*size)
	var v geometry.Components
	for p := uint32(0); p < numPoints; p++ {
		if !a.ConvertValue(geometry.PointIndex(p), dt, &v) {
			return nil, fmt.Errorf("attribute %d: point %d has no value", a.UniqueID(), p)
		}
		for k := 0; k < a.NumComponents(); k++ {
			switch size {
			case 1:
				out = append(out, byte(v[k]))
			case 2:
				out = binary.LittleEndian.AppendUint16(out, uint16(v[k]))
			case 4:
				out = binary.LittleEndian.AppendUint32(out, uint32(v[k]))
			default:
				out = binary.LittleEndian.AppendUint64(out, v[k])
			}
		}
	}
	return out, nil
}
