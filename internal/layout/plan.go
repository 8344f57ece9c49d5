package layout

import (
	"fmt"

	"github.com/TFMV/meshbuf/internal/geometry"
)

// MaxShortIndexCount is the largest index count written with 2-byte
// indices. Larger index blocks use 4-byte indices.
const MaxShortIndexCount = 65535

// IndexWidthFor returns the byte width of every index in a block of
// indexCount indices.
func IndexWidthFor(indexCount uint64) int {
	if indexCount <= MaxShortIndexCount {
		return 2
	}
	return 4
}

// TypeCode is the wire tag reported for an attribute's element type.
type TypeCode uint8

const (
	CodeInt8 TypeCode = iota
	CodeUint8
	CodeInt16
	CodeUint16
	CodeInt32
	CodeUint32
	CodeFloat32
)

// TypeCodeOf maps dt to its wire tag. Types without a tag, float64
// included, report CodeUint8 and ok == false.
func TypeCodeOf(dt geometry.DataType) (code TypeCode, ok bool) {
	switch dt {
	case geometry.TypeInt8:
		return CodeInt8, true
	case geometry.TypeUint8:
		return CodeUint8, true
	case geometry.TypeInt16:
		return CodeInt16, true
	case geometry.TypeUint16:
		return CodeUint16, true
	case geometry.TypeInt32:
		return CodeInt32, true
	case geometry.TypeUint32:
		return CodeUint32, true
	case geometry.TypeFloat32:
		return CodeFloat32, true
	default:
		return CodeUint8, false
	}
}

func (c TypeCode) String() string {
	switch c {
	case CodeInt8:
		return "Int8"
	case CodeUint8:
		return "UInt8"
	case CodeInt16:
		return "Int16"
	case CodeUint16:
		return "UInt16"
	case CodeInt32:
		return "Int32"
	case CodeUint32:
		return "UInt32"
	case CodeFloat32:
		return "Float32"
	default:
		return fmt.Sprintf("TypeCode(%d)", uint8(c))
	}
}

// Segment is the placement of one attribute in the output buffer.
type Segment struct {
	UniqueID      int32                  `json:"unique_id"`
	Kind          geometry.AttributeKind `json:"kind"`
	NumComponents int                    `json:"num_components"`
	TypeCode      TypeCode               `json:"type_code"`
	// DataType is the attribute's true element type. It differs from what
	// TypeCode names when Degraded is set.
	DataType geometry.DataType `json:"data_type"`
	Degraded bool              `json:"degraded,omitempty"`
	Offset   uint64            `json:"offset"`
	Length   uint64            `json:"length"`
}

// Layout is the predicted shape of a mesh's output buffer: an index block
// followed by one segment per attribute in unique id order.
type Layout struct {
	VertexCount uint32    `json:"vertex_count"`
	IndexCount  uint64    `json:"index_count"`
	IndexWidth  int       `json:"index_width"`
	IndexLength uint64    `json:"index_length"`
	Attributes  []Segment `json:"attributes"`
}

// Size is the total byte length of the buffer.
func (l *Layout) Size() uint64 {
	size := l.IndexLength
	for _, s := range l.Attributes {
		size += s.Length
	}
	return size
}

// Plan computes the layout of m without writing anything.
func Plan(m geometry.Mesh) *Layout {
	l, _ := plan(m)
	return l
}

// PredictSize returns Plan(m).Size() without building the segment list.
func PredictSize(m geometry.Mesh) uint64 {
	indexCount := uint64(m.NumFaces()) * 3
	size := indexCount * uint64(IndexWidthFor(indexCount))
	for i := 0; i < m.NumAttributes(); i++ {
		size += attributeLength(m.NumPoints(), m.Attribute(i))
	}
	return size
}

func attributeLength(numPoints uint32, a geometry.Attribute) uint64 {
	return uint64(numPoints) * uint64(a.NumComponents()) * uint64(ElementSize(a.DataType()))
}

// plan returns the layout together with the attributes in segment order.
func plan(m geometry.Mesh) (*Layout, []geometry.Attribute) {
	indexCount := uint64(m.NumFaces()) * 3
	width := IndexWidthFor(indexCount)
	l := &Layout{
		VertexCount: m.NumPoints(),
		IndexCount:  indexCount,
		IndexWidth:  width,
		IndexLength: indexCount * uint64(width),
	}

	attrs := Ordered(m)
	l.Attributes = make([]Segment, len(attrs))
	offset := l.IndexLength
	for i, a := range attrs {
		code, ok := TypeCodeOf(a.DataType())
		length := attributeLength(m.NumPoints(), a)
		l.Attributes[i] = Segment{
			UniqueID:      a.UniqueID(),
			Kind:          a.Kind(),
			NumComponents: a.NumComponents(),
			TypeCode:      code,
			DataType:      a.DataType(),
			Degraded:      !ok,
			Offset:        offset,
			Length:        length,
		}
		offset += length
	}
	return l, attrs
}
