package gltfexport

import (
	"bytes"
	"testing"

	"github.com/TFMV/meshbuf/internal/geometry"
	"github.com/TFMV/meshbuf/internal/layout"
	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, m geometry.Mesh) ([]byte, *layout.Layout) {
	t.Helper()
	l := layout.Plan(m)
	buf := make([]byte, l.Size())
	_, err := layout.Write(m, buf)
	require.NoError(t, err)
	return buf, l
}

func TestBuildGrid(t *testing.T) {
	m, err := geometry.Grid(3)
	require.NoError(t, err)
	buf, l := encode(t, m)

	doc, skipped, err := Build("grid", buf, l)
	require.NoError(t, err)
	assert.Empty(t, skipped)

	require.Len(t, doc.Meshes, 1)
	prim := doc.Meshes[0].Primitives[0]
	assert.Equal(t, gltf.PrimitiveTriangles, prim.Mode)
	require.NotNil(t, prim.Indices)

	idx := doc.Accessors[*prim.Indices]
	assert.Equal(t, gltf.ComponentUshort, idx.ComponentType)
	assert.Equal(t, 54, idx.Count)

	for _, name := range []string{"POSITION", "NORMAL", "TEXCOORD_0", "COLOR_0"} {
		assert.Contains(t, prim.Attributes, name)
	}
	color := doc.Accessors[prim.Attributes["COLOR_0"]]
	assert.True(t, color.Normalized)
	assert.Equal(t, gltf.AccessorVec4, color.Type)

	pos := doc.Accessors[prim.Attributes["POSITION"]]
	assert.Equal(t, []float64{0, 0, 0}, pos.Min)
	assert.Equal(t, []float64{1, 1, 0}, pos.Max)
	assert.Equal(t, 16, pos.Count)

	for _, v := range doc.BufferViews {
		assert.Zero(t, v.ByteOffset%4)
	}
	assert.Equal(t, len(doc.Buffers[0].Data), doc.Buffers[0].ByteLength)
}

func TestBuildPadsViews(t *testing.T) {
	m, err := geometry.NewMesh(3, []geometry.Face{{0, 1, 2}})
	require.NoError(t, err)
	pos, err := geometry.NewAttribute[float32](0, geometry.KindPosition, 3, 0, 0, 0, 1, 0, 0, 0, 1, 0)
	require.NoError(t, err)
	require.NoError(t, m.AddAttribute(pos))
	buf, l := encode(t, m)
	require.Len(t, buf, 6+36)

	doc, _, err := Build("tri", buf, l)
	require.NoError(t, err)
	require.Len(t, doc.BufferViews, 2)
	assert.Equal(t, 8, doc.BufferViews[1].ByteOffset)
	assert.Equal(t, buf[6:], doc.Buffers[0].Data[8:])
}

func TestBuildSkipsUnsupported(t *testing.T) {
	m, err := geometry.NewMesh(2, nil)
	require.NoError(t, err)
	ints, err := geometry.NewAttribute[int32](4, geometry.KindGeneric, 1, -1, 1)
	require.NoError(t, err)
	doubles, err := geometry.NewAttribute(5, geometry.KindGeneric, 1, 1.0, 2.0)
	require.NoError(t, err)
	bytesAttr, err := geometry.NewAttribute[uint8](6, geometry.KindGeneric, 2, 1, 2, 3, 4)
	require.NoError(t, err)
	for _, a := range []geometry.Attribute{ints, doubles, bytesAttr} {
		require.NoError(t, m.AddAttribute(a))
	}
	buf, l := encode(t, m)

	doc, skipped, err := Build("points", buf, l)
	require.NoError(t, err)
	require.Len(t, skipped, 2)
	assert.Equal(t, int32(4), skipped[0].UniqueID)
	assert.Equal(t, int32(5), skipped[1].UniqueID)

	prim := doc.Meshes[0].Primitives[0]
	assert.Equal(t, gltf.PrimitivePoints, prim.Mode)
	assert.Nil(t, prim.Indices)
	assert.Contains(t, prim.Attributes, "_ATTR6")
}

func TestWriteBinary(t *testing.T) {
	m, err := geometry.Grid(1)
	require.NoError(t, err)
	buf, l := encode(t, m)

	var out bytes.Buffer
	_, err = WriteBinary(&out, "grid", buf, l)
	require.NoError(t, err)
	assert.Equal(t, []byte("glTF"), out.Bytes()[:4])

	_, err = WriteBinary(&out, "grid", buf[:len(buf)-1], l)
	assert.ErrorIs(t, err, ErrBufferSize)
}
