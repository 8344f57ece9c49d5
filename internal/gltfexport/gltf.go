// Package gltfexport wraps a decoded mesh buffer and its layout into a
// glTF 2.0 document.
package gltfexport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/TFMV/meshbuf/internal/geometry"
	"github.com/TFMV/meshbuf/internal/layout"
	"github.com/qmuntal/gltf"
)

const (
	semPosition = "POSITION"
	semNormal   = "NORMAL"
)

// ErrBufferSize is returned when the buffer does not match its layout.
var ErrBufferSize = errors.New("buffer does not match layout")

// Skipped names a segment that has no glTF representation.
type Skipped struct {
	UniqueID int32
	Reason   string
}

var componentTypes = map[layout.TypeCode]gltf.ComponentType{
	layout.CodeInt8:    gltf.ComponentByte,
	layout.CodeUint8:   gltf.ComponentUbyte,
	layout.CodeInt16:   gltf.ComponentShort,
	layout.CodeUint16:  gltf.ComponentUshort,
	layout.CodeUint32:  gltf.ComponentUint,
	layout.CodeFloat32: gltf.ComponentFloat,
}

var accessorTypes = [...]gltf.AccessorType{
	1: gltf.AccessorScalar,
	2: gltf.AccessorVec2,
	3: gltf.AccessorVec3,
	4: gltf.AccessorVec4,
}

// Build returns a single-mesh document. Every segment becomes a buffer
// view padded to four bytes. Segments glTF cannot carry, such as Int32 or
// degraded ones, are left out and reported in skipped.
func Build(name string, buf []byte, l *layout.Layout) (doc *gltf.Document, skipped []Skipped, err error) {
	if uint64(len(buf)) != l.Size() {
		return nil, nil, fmt.Errorf("%w: %d bytes, layout %d", ErrBufferSize, len(buf), l.Size())
	}
	doc = gltf.NewDocument()
	var data []byte

	addView := func(offset, length uint64, target gltf.Target) int {
		for len(data)%4 != 0 {
			data = append(data, 0)
		}
		doc.BufferViews = append(doc.BufferViews, &gltf.BufferView{
			Buffer:     0,
			ByteOffset: len(data),
			ByteLength: int(length),
			Target:     target,
		})
		data = append(data, buf[offset:offset+length]...)
		return len(doc.BufferViews) - 1
	}

	prim := &gltf.Primitive{Mode: gltf.PrimitivePoints}
	attrs := map[string]int{}
	counters := map[string]int{}

	if l.IndexCount > 0 {
		ct := gltf.ComponentUshort
		if l.IndexWidth == 4 {
			ct = gltf.ComponentUint
		}
		view := addView(0, l.IndexLength, gltf.TargetElementArrayBuffer)
		doc.Accessors = append(doc.Accessors, &gltf.Accessor{
			BufferView:    gltf.Index(view),
			ComponentType: ct,
			Count:         int(l.IndexCount),
			Type:          gltf.AccessorScalar,
		})
		prim.Indices = gltf.Index(len(doc.Accessors) - 1)
		prim.Mode = gltf.PrimitiveTriangles
	}

	for _, s := range l.Attributes {
		ct, ok := componentTypes[s.TypeCode]
		switch {
		case s.Degraded:
			skipped = append(skipped, Skipped{s.UniqueID, "element type " + s.DataType.String() + " has no type code"})
			continue
		case !ok:
			skipped = append(skipped, Skipped{s.UniqueID, s.TypeCode.String() + " is not a glTF component type"})
			continue
		case s.NumComponents < 1 || s.NumComponents > 4:
			skipped = append(skipped, Skipped{s.UniqueID, fmt.Sprintf("%d components", s.NumComponents)})
			continue
		}

		semantic, normalized := semanticFor(s, counters)
		view := addView(s.Offset, s.Length, gltf.TargetArrayBuffer)
		acc := &gltf.Accessor{
			BufferView:    gltf.Index(view),
			ComponentType: ct,
			Normalized:    normalized,
			Count:         int(l.VertexCount),
			Type:          accessorTypes[s.NumComponents],
		}
		if semantic == semPosition {
			acc.Min, acc.Max = bounds(buf[s.Offset:s.Offset+s.Length], l.VertexCount)
		}
		doc.Accessors = append(doc.Accessors, acc)
		attrs[semantic] = len(doc.Accessors) - 1
	}

	prim.Attributes = attrs
	doc.Buffers = []*gltf.Buffer{{ByteLength: len(data), Data: data}}
	doc.Meshes = []*gltf.Mesh{{Name: name, Primitives: []*gltf.Primitive{prim}}}
	doc.Nodes = []*gltf.Node{{Name: name, Mesh: gltf.Index(0)}}
	if len(doc.Scenes) == 0 {
		doc.Scenes = []*gltf.Scene{{}}
		doc.Scene = gltf.Index(0)
	}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)
	return doc, skipped, nil
}

// semanticFor picks the attribute name. Only the first float32 xyz
// position and normal get the standard names; everything else that does
// not fit a standard semantic becomes an application specific _ATTR name.
func semanticFor(s layout.Segment, counters map[string]int) (string, bool) {
	f32 := s.TypeCode == layout.CodeFloat32
	unsignedNorm := s.TypeCode == layout.CodeUint8 || s.TypeCode == layout.CodeUint16
	custom := fmt.Sprintf("_ATTR%d", s.UniqueID)

	next := func(base string) string {
		n := counters[base]
		counters[base] = n + 1
		return fmt.Sprintf("%s_%d", base, n)
	}

	switch s.Kind {
	case geometry.KindPosition:
		if f32 && s.NumComponents == 3 && counters[semPosition] == 0 {
			counters[semPosition]++
			return semPosition, false
		}
	case geometry.KindNormal:
		if f32 && s.NumComponents == 3 && counters[semNormal] == 0 {
			counters[semNormal]++
			return semNormal, false
		}
	case geometry.KindTexCoord:
		if s.NumComponents == 2 && (f32 || unsignedNorm) {
			return next("TEXCOORD"), !f32
		}
	case geometry.KindColor:
		if (s.NumComponents == 3 || s.NumComponents == 4) && (f32 || unsignedNorm) {
			return next("COLOR"), !f32
		}
	}
	return custom, false
}

func bounds(seg []byte, n uint32) (lo, hi []float64) {
	lo = []float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi = []float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for i := uint32(0); i < n; i++ {
		for c := 0; c < 3; c++ {
			bits := binary.NativeEndian.Uint32(seg[(int(i)*3+c)*4:])
			v := float64(math.Float32frombits(bits))
			lo[c] = math.Min(lo[c], v)
			hi[c] = math.Max(hi[c], v)
		}
	}
	if n == 0 {
		return []float64{0, 0, 0}, []float64{0, 0, 0}
	}
	return lo, hi
}

// WriteBinary encodes the document for buf as a .glb stream.
func WriteBinary(w io.Writer, name string, buf []byte, l *layout.Layout) ([]Skipped, error) {
	doc, skipped, err := Build(name, buf, l)
	if err != nil {
		return nil, err
	}
	enc := gltf.NewEncoder(w)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode glTF: %w", err)
	}
	return skipped, nil
}
