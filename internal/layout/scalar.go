package layout

import (
	"encoding/binary"
	"math"

	"github.com/TFMV/meshbuf/internal/geometry"
)

// ElementSize returns the byte width of one scalar of type dt, or 0 when
// the type is unsupported.
func ElementSize(dt geometry.DataType) int {
	return dt.Size()
}

// Cursor is a write position over a bounded destination buffer.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor returns a cursor at the start of dst.
func NewCursor(dst []byte) *Cursor {
	return &Cursor{buf: dst}
}

// Offset is the number of bytes written so far.
func (c *Cursor) Offset() int { return c.off }

// Remaining is the capacity left after the cursor.
func (c *Cursor) Remaining() int { return len(c.buf) - c.off }

// WriteScalar stores the low ElementSize(dt) bytes of bits in native byte
// order and advances the cursor. It leaves the cursor untouched and returns
// false when dt has no size or the value does not fit.
func (c *Cursor) WriteScalar(bits uint64, dt geometry.DataType) bool {
	size := ElementSize(dt)
	if size == 0 || size > c.Remaining() {
		return false
	}
	b := c.buf[c.off : c.off+size]
	switch size {
	case 1:
		b[0] = byte(bits)
	case 2:
		binary.NativeEndian.PutUint16(b, uint16(bits))
	case 4:
		binary.NativeEndian.PutUint32(b, uint32(bits))
	case 8:
		binary.NativeEndian.PutUint64(b, bits)
	}
	c.off += size
	return true
}

// WriteFloat32 is WriteScalar for a float32 value.
func (c *Cursor) WriteFloat32(f float32) bool {
	return c.WriteScalar(uint64(math.Float32bits(f)), geometry.TypeFloat32)
}
