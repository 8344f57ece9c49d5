package layout

import (
	"errors"
	"fmt"

	"github.com/TFMV/meshbuf/internal/geometry"
)

var (
	// ErrShortBuffer is returned when the destination cannot hold the
	// planned layout.
	ErrShortBuffer = errors.New("destination buffer too small")
	// ErrUnsupportedType is returned for attributes whose element type the
	// writer cannot emit.
	ErrUnsupportedType = errors.New("unsupported attribute element type")
	// ErrValueConversion is returned when the decoder cannot produce a
	// point's value in the attribute's own element type.
	ErrValueConversion = errors.New("attribute value conversion failed")
	// ErrLayoutMismatch is returned when the written bytes drift from the
	// planned segment offsets.
	ErrLayoutMismatch = errors.New("written layout does not match plan")
)

// Writable reports whether the writer can emit attributes of type dt.
func Writable(dt geometry.DataType) bool {
	switch dt {
	case geometry.TypeInt8, geometry.TypeUint8,
		geometry.TypeInt16, geometry.TypeUint16,
		geometry.TypeInt32, geometry.TypeUint32,
		geometry.TypeFloat32, geometry.TypeFloat64:
		return true
	}
	return false
}

// Write serializes m into dst: the index block, then each attribute's
// values in unique id order. It returns the number of bytes written, which
// equals Plan(m).Size(). On error the returned count is 0 and the content
// of dst is unspecified.
func Write(m geometry.Mesh, dst []byte) (int, error) {
	l, attrs := plan(m)
	size := l.Size()
	if uint64(len(dst)) < size {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, size, len(dst))
	}
	for _, s := range l.Attributes {
		if !Writable(s.DataType) {
			return 0, fmt.Errorf("%w: attribute %d is %s", ErrUnsupportedType, s.UniqueID, s.DataType)
		}
	}

	c := NewCursor(dst[:size])
	if err := writeIndices(c, m, l); err != nil {
		return 0, err
	}
	for i, a := range attrs {
		if err := writeAttribute(c, m.NumPoints(), a, l.Attributes[i]); err != nil {
			return 0, err
		}
	}
	if uint64(c.Offset()) != size {
		return 0, fmt.Errorf("%w: wrote %d of %d bytes", ErrLayoutMismatch, c.Offset(), size)
	}
	return c.Offset(), nil
}

// writeIndices picks the width from the index count alone. Point indices
// above 0xffff in a 2-byte block keep their low 16 bits.
func writeIndices(c *Cursor, m geometry.Mesh, l *Layout) error {
	dt := geometry.TypeUint32
	if l.IndexWidth == 2 {
		dt = geometry.TypeUint16
	}
	for i := uint32(0); i < m.NumFaces(); i++ {
		for _, p := range m.Face(i) {
			if !c.WriteScalar(uint64(p), dt) {
				return fmt.Errorf("%w: index block of face %d", ErrShortBuffer, i)
			}
		}
	}
	if uint64(c.Offset()) != l.IndexLength {
		return fmt.Errorf("%w: index block is %d bytes, planned %d", ErrLayoutMismatch, c.Offset(), l.IndexLength)
	}
	return nil
}

func writeAttribute(c *Cursor, numPoints uint32, a geometry.Attribute, s Segment) error {
	if uint64(c.Offset()) != s.Offset {
		return fmt.Errorf("%w: attribute %d starts at %d, planned %d", ErrLayoutMismatch, s.UniqueID, c.Offset(), s.Offset)
	}
	var v geometry.Components
	for p := uint32(0); p < numPoints; p++ {
		if !a.ConvertValue(geometry.PointIndex(p), s.DataType, &v) {
			return fmt.Errorf("%w: attribute %d point %d", ErrValueConversion, s.UniqueID, p)
		}
		for k := 0; k < s.NumComponents; k++ {
			if !c.WriteScalar(v[k], s.DataType) {
				return fmt.Errorf("%w: attribute %d point %d", ErrShortBuffer, s.UniqueID, p)
			}
		}
	}
	if end := s.Offset + s.Length; uint64(c.Offset()) != end {
		return fmt.Errorf("%w: attribute %d ends at %d, planned %d", ErrLayoutMismatch, s.UniqueID, c.Offset(), end)
	}
	return nil
}
