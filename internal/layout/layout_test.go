package layout

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/TFMV/meshbuf/internal/geometry"
	"github.com/TFMV/meshbuf/internal/geometry/geomtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func mustAttr(t *testing.T, spec geometry.AttributeSpec) *geometry.PointAttribute {
	t.Helper()
	a, err := geometry.NewPointAttribute(spec)
	require.NoError(t, err)
	return a
}

func uint8Attr(t *testing.T, id int32, vals ...uint8) *geometry.PointAttribute {
	t.Helper()
	_, b := geometry.Pack(vals...)
	return mustAttr(t, geometry.AttributeSpec{UniqueID: id, Kind: geometry.KindGeneric, DataType: geometry.TypeUint8, NumComponents: 1, Values: b})
}

func faces(n int) []geometry.Face {
	out := make([]geometry.Face, n)
	for i := range out {
		out[i] = geometry.Face{0, 1, 2}
	}
	return out
}

func TestCursorWriteScalar(t *testing.T) {
	buf := make([]byte, 7)
	c := NewCursor(buf)

	require.True(t, c.WriteScalar(0xabcd, geometry.TypeUint16))
	require.True(t, c.WriteFloat32(1.5))
	assert.Equal(t, 6, c.Offset())
	assert.Equal(t, 1, c.Remaining())

	assert.False(t, c.WriteScalar(1, geometry.TypeUint16), "write past capacity")
	assert.Equal(t, 6, c.Offset(), "failed write must not advance")
	assert.False(t, c.WriteScalar(1, geometry.TypeBool), "unsized type")

	require.True(t, c.WriteScalar(0x1ff, geometry.TypeInt8))
	assert.Equal(t, uint16(0xabcd), binary.NativeEndian.Uint16(buf))
	assert.Equal(t, float32(1.5), math.Float32frombits(binary.NativeEndian.Uint32(buf[2:])))
	assert.Equal(t, byte(0xff), buf[6])
	assert.Equal(t, 0, c.Remaining())
}

func TestIndexWidthBoundary(t *testing.T) {
	tests := []struct {
		faces  int
		width  int
		length uint64
	}{
		{0, 2, 0},
		{21845, 2, 65535 * 2},
		{21846, 4, 65538 * 4},
	}
	for _, tt := range tests {
		m, err := geometry.NewMesh(3, faces(tt.faces))
		require.NoError(t, err)

		l := Plan(m)
		assert.Equal(t, tt.width, l.IndexWidth)
		assert.Equal(t, tt.length, l.IndexLength)
		assert.Equal(t, tt.length, PredictSize(m))

		buf := make([]byte, l.Size())
		n, err := Write(m, buf)
		require.NoError(t, err)
		assert.Equal(t, int(tt.length), n)
		if tt.faces > 0 {
			last := buf[n-tt.width:]
			if tt.width == 2 {
				assert.Equal(t, uint16(2), binary.NativeEndian.Uint16(last))
			} else {
				assert.Equal(t, uint32(2), binary.NativeEndian.Uint32(last))
			}
		}
	}
}

func TestAttributeOrdering(t *testing.T) {
	m, err := geometry.NewMesh(2, []geometry.Face{{0, 1, 1}})
	require.NoError(t, err)
	for _, id := range []int32{5, 2, 9} {
		require.NoError(t, m.AddAttribute(uint8Attr(t, id, uint8(id), uint8(id))))
	}

	l := Plan(m)
	require.Len(t, l.Attributes, 3)
	for i, want := range []int32{2, 5, 9} {
		s := l.Attributes[i]
		assert.Equal(t, want, s.UniqueID)
		assert.Equal(t, uint64(6+2*i), s.Offset)
		assert.Equal(t, uint64(2), s.Length)
	}

	buf := make([]byte, 64)
	n, err := Write(m, buf)
	require.NoError(t, err)
	require.Equal(t, 12, n)

	var want []byte
	for _, idx := range []uint16{0, 1, 1} {
		want = binary.NativeEndian.AppendUint16(want, idx)
	}
	want = append(want, 2, 2, 5, 5, 9, 9)
	assert.Equal(t, want, buf[:n])
}

func TestDegradedFloat64Code(t *testing.T) {
	m, err := geometry.NewMesh(2, nil)
	require.NoError(t, err)
	a, err := geometry.NewAttribute(4, geometry.KindGeneric, 2, 0.25, 0.5, 0.75, 1.0)
	require.NoError(t, err)
	require.NoError(t, m.AddAttribute(a))

	l := Plan(m)
	require.Len(t, l.Attributes, 1)
	s := l.Attributes[0]
	assert.Equal(t, CodeUint8, s.TypeCode)
	assert.True(t, s.Degraded)
	assert.Equal(t, geometry.TypeFloat64, s.DataType)
	assert.Equal(t, uint64(2*2*8), s.Length)

	buf := make([]byte, l.Size())
	n, err := Write(m, buf)
	require.NoError(t, err)
	assert.Equal(t, 32, n)
	assert.Equal(t, 0.75, math.Float64frombits(binary.NativeEndian.Uint64(buf[16:])))
}

func TestWriteFailures(t *testing.T) {
	t.Run("short buffer", func(t *testing.T) {
		m, err := geometry.NewMesh(3, faces(1))
		require.NoError(t, err)
		require.NoError(t, m.AddAttribute(uint8Attr(t, 1, 1, 2, 3)))

		buf := make([]byte, 8)
		n, err := Write(m, buf)
		assert.ErrorIs(t, err, ErrShortBuffer)
		assert.Zero(t, n)
		assert.Equal(t, make([]byte, 8), buf, "nothing written on failure")
	})

	t.Run("unsupported type", func(t *testing.T) {
		m, err := geometry.NewMesh(2, nil)
		require.NoError(t, err)
		require.NoError(t, m.AddAttribute(uint8Attr(t, 1, 1, 2)))
		wide, err := geometry.NewAttribute[int64](2, geometry.KindGeneric, 1, 1, 2)
		require.NoError(t, err)
		require.NoError(t, m.AddAttribute(wide))

		assert.Equal(t, uint64(2+16), Plan(m).Size())
		n, err := Write(m, make([]byte, 64))
		assert.ErrorIs(t, err, ErrUnsupportedType)
		assert.Zero(t, n)
	})

}

func TestWriteHighPointIndexInNarrowBlock(t *testing.T) {
	const numPoints = 70000
	faces := []geometry.Face{{0, 1, 69999}, {69998, 69999, 65536}}
	m, err := geometry.NewMesh(numPoints, faces)
	require.NoError(t, err)
	vals := make([]uint8, numPoints)
	for i := range vals {
		vals[i] = uint8(i)
	}
	require.NoError(t, m.AddAttribute(uint8Attr(t, 4, vals...)))

	l := Plan(m)
	require.Equal(t, 2, l.IndexWidth)
	size := PredictSize(m)
	assert.Equal(t, uint64(6*2+numPoints), size)

	buf := make([]byte, size+16)
	n, err := Write(m, buf)
	require.NoError(t, err)
	assert.Equal(t, int(size), n)

	want := []uint16{0, 1, uint16(69999 & 0xffff), uint16(69998 & 0xffff), uint16(69999 & 0xffff), 0}
	for i, w := range want {
		assert.Equal(t, w, binary.NativeEndian.Uint16(buf[i*2:]), "index %d", i)
	}
	assert.Equal(t, vals, buf[12:12+numPoints])
}

func TestTypeCodeOf(t *testing.T) {
	tests := []struct {
		dt   geometry.DataType
		code TypeCode
		ok   bool
	}{
		{geometry.TypeInt8, CodeInt8, true},
		{geometry.TypeUint8, CodeUint8, true},
		{geometry.TypeInt16, CodeInt16, true},
		{geometry.TypeUint16, CodeUint16, true},
		{geometry.TypeInt32, CodeInt32, true},
		{geometry.TypeUint32, CodeUint32, true},
		{geometry.TypeFloat32, CodeFloat32, true},
		{geometry.TypeFloat64, CodeUint8, false},
		{geometry.TypeInt64, CodeUint8, false},
	}
	for _, tt := range tests {
		code, ok := TypeCodeOf(tt.dt)
		assert.Equal(t, tt.code, code, tt.dt.String())
		assert.Equal(t, tt.ok, ok, tt.dt.String())
	}
	assert.Equal(t, uint8(6), uint8(CodeFloat32))
}

func TestPlanWriteAgreementProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m := geomtest.Mesh(rt)
		l := Plan(m)
		size := l.Size()

		if PredictSize(m) != size {
			rt.Fatalf("predicted %d, planned %d", PredictSize(m), size)
		}
		offset := l.IndexLength
		for _, s := range l.Attributes {
			if s.Offset != offset {
				rt.Fatalf("segment %d at %d, want %d", s.UniqueID, s.Offset, offset)
			}
			offset += s.Length
		}

		extra := rapid.IntRange(0, 16).Draw(rt, "extra")
		n, err := Write(m, make([]byte, int(size)+extra))
		if err != nil || uint64(n) != size {
			rt.Fatalf("write returned %d, %v; planned %d", n, err, size)
		}
		if size > 0 {
			short := rapid.IntRange(0, int(size)-1).Draw(rt, "short")
			if n, err := Write(m, make([]byte, short)); n != 0 || err == nil {
				rt.Fatalf("write into %d of %d bytes returned %d", short, size, n)
			}
		}
	})
}

func TestOrderingDeterminismProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		numPoints := rapid.Uint32Range(1, 20).Draw(rt, "points")
		fs := geomtest.Faces(rt, numPoints, 10)
		specs := geomtest.AttributeSpecs(rt, numPoints, 6)
		shuffled := rapid.Permutation(specs).Draw(rt, "order")

		a := geomtest.Build(rt, numPoints, fs, specs)
		b := geomtest.Build(rt, numPoints, fs, shuffled)

		size := Plan(a).Size()
		bufA, bufB := make([]byte, size), make([]byte, size)
		if _, err := Write(a, bufA); err != nil {
			rt.Fatal(err)
		}
		if _, err := Write(b, bufB); err != nil {
			rt.Fatal(err)
		}
		if string(bufA) != string(bufB) {
			rt.Fatalf("attribute order changed the output")
		}
	})
}
