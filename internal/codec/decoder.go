package codec

import (
	"fmt"

	"github.com/TFMV/meshbuf/internal/geometry"
	"github.com/TFMV/meshbuf/schema/meshbuf"
	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

// Decoder implements geometry.Decoder for MGEO containers. It is safe for
// concurrent use.
type Decoder struct {
	zr         *zstd.Decoder
	maxPayload uint32
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithMaxPayload limits the decompressed payload size.
func WithMaxPayload(n uint32) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.maxPayload = n
		}
	}
}

// NewDecoder creates a Decoder.
func NewDecoder(opts ...DecoderOption) (*Decoder, error) {
	d := &Decoder{maxPayload: DefaultMaxPayload}
	for _, opt := range opts {
		opt(d)
	}
	zr, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(d.maxPayload)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	d.zr = zr
	return d, nil
}

// Close releases the decompressor.
func (d *Decoder) Close() {
	d.zr.Close()
}

// DecodeMesh implements geometry.Decoder.
func (d *Decoder) DecodeMesh(data []byte) (geometry.Mesh, error) {
	h, raw, err := d.payload(data)
	if err != nil {
		return nil, err
	}
	if h.Kind != meshbuf.GeometryKindMesh {
		return nil, ErrNotMesh
	}
	m, err := buildGeometry(raw, true)
	if err != nil {
		return nil, err
	}
	return m.(*geometry.TriMesh), nil
}

// DecodePointCloud implements geometry.Decoder. Mesh containers decode as
// their point cloud; faces are ignored.
func (d *Decoder) DecodePointCloud(data []byte) (geometry.PointCloud, error) {
	_, raw, err := d.payload(data)
	if err != nil {
		return nil, err
	}
	return buildGeometry(raw, false)
}

// Inspect returns the header of data without decompressing the payload.
func (d *Decoder) Inspect(data []byte) (Header, error) {
	h, _, err := ParseHeader(data)
	return h, err
}

// payload verifies the container and returns its decompressed body.
func (d *Decoder) payload(data []byte) (Header, []byte, error) {
	h, body, err := ParseHeader(data)
	if err != nil {
		return h, nil, err
	}
	if h.RawLength > d.maxPayload {
		return h, nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, h.RawLength)
	}
	raw, err := d.zr.DecodeAll(body, make([]byte, 0, min(h.RawLength, 64<<20)))
	if err != nil {
		return h, nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if uint32(len(raw)) != h.RawLength {
		return h, nil, fmt.Errorf("%w: payload is %d bytes, header says %d", ErrCorrupt, len(raw), h.RawLength)
	}
	if xxhash.Sum64(raw) != h.Checksum {
		return h, nil, ErrChecksum
	}
	return h, raw, nil
}

// buildGeometry materializes the FlatBuffers payload. Out-of-range offsets
// in a damaged payload panic inside the accessors; those are reported as
// ErrCorrupt.
func buildGeometry(raw []byte, asMesh bool) (pc geometry.PointCloud, err error) {
	defer func() {
		if r := recover(); r != nil {
			pc, err = nil, fmt.Errorf("%w: %v", ErrCorrupt, r)
		}
	}()
	if len(raw) < 8 {
		return nil, fmt.Errorf("%w: payload of %d bytes", ErrCorrupt, len(raw))
	}

	g := meshbuf.GetRootAsGeometry(raw, 0)
	numPoints := g.NumPoints()

	var cloud *geometry.Cloud
	if asMesh {
		if g.Kind() != meshbuf.GeometryKindMesh {
			return nil, ErrNotMesh
		}
		n := g.FacesLength()
		if n%3 != 0 || uint64(n)*4 > uint64(len(raw)) {
			return nil, fmt.Errorf("%w: %d face indices", ErrCorrupt, n)
		}
		faces := make([]geometry.Face, n/3)
		for i := range faces {
			for k := range faces[i] {
				faces[i][k] = geometry.PointIndex(g.Faces(3*i + k))
			}
		}
		m, err := geometry.NewMesh(numPoints, faces)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		cloud, pc = m.Cloud, m
	} else {
		cloud = geometry.NewCloud(numPoints)
		pc = cloud
	}

	numAttrs := g.AttributesLength()
	if uint64(numAttrs)*4 > uint64(len(raw)) {
		return nil, fmt.Errorf("%w: %d attributes", ErrCorrupt, numAttrs)
	}
	var fa meshbuf.Attribute
	for i := 0; i < numAttrs; i++ {
		g.Attributes(&fa, i)
		var mapping []uint32
		if n := fa.MappingLength(); n > 0 {
			if uint64(n)*4 > uint64(len(raw)) {
				return nil, fmt.Errorf("%w: attribute %d mapping of %d entries", ErrCorrupt, i, n)
			}
			mapping = make([]uint32, n)
			for j := range mapping {
				mapping[j] = fa.Mapping(j)
			}
		}
		a, err := geometry.NewPointAttribute(geometry.AttributeSpec{
			UniqueID:      fa.UniqueId(),
			Kind:          geometry.AttributeKind(fa.Kind()),
			DataType:      geometry.DataType(fa.DataType()),
			NumComponents: int(fa.NumComponents()),
			Normalized:    fa.Normalized(),
			Values:        fa.ValuesBytes(),
			Mapping:       mapping,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: attribute %d: %w", ErrCorrupt, i, err)
		}
		if err := cloud.AddAttribute(a); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
	}
	return pc, nil
}
