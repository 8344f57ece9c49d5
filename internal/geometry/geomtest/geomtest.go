// Package geomtest provides generators of random geometry for property tests.
package geomtest

import (
	"fmt"

	"github.com/TFMV/meshbuf/internal/geometry"
	"pgregory.net/rapid"
)

// WritableTypes are the element types the buffer writer can emit.
var WritableTypes = []geometry.DataType{
	geometry.TypeInt8, geometry.TypeUint8,
	geometry.TypeInt16, geometry.TypeUint16,
	geometry.TypeInt32, geometry.TypeUint32,
	geometry.TypeFloat32, geometry.TypeFloat64,
}

// AttributeSpecs draws up to maxAttrs attribute specs covering numPoints
// points, with distinct unique ids in random order.
func AttributeSpecs(t *rapid.T, numPoints uint32, maxAttrs int) []geometry.AttributeSpec {
	ids := rapid.SliceOfNDistinct(rapid.Int32Range(-50, 1000), 0, maxAttrs, rapid.ID[int32]).Draw(t, "ids")
	specs := make([]geometry.AttributeSpec, len(ids))
	for i, id := range ids {
		dt := rapid.SampledFrom(WritableTypes).Draw(t, fmt.Sprintf("type_%d", i))
		nc := rapid.IntRange(1, geometry.MaxComponents).Draw(t, fmt.Sprintf("components_%d", i))
		size := int(numPoints) * nc * dt.Size()
		specs[i] = geometry.AttributeSpec{
			UniqueID:      id,
			Kind:          geometry.AttributeKind(rapid.IntRange(0, int(geometry.KindGeneric)).Draw(t, fmt.Sprintf("kind_%d", i))),
			DataType:      dt,
			NumComponents: nc,
			Values:        rapid.SliceOfN(rapid.Byte(), size, size).Draw(t, fmt.Sprintf("values_%d", i)),
		}
	}
	return specs
}

// Faces draws up to maxFaces faces over numPoints points.
func Faces(t *rapid.T, numPoints uint32, maxFaces int) []geometry.Face {
	n := rapid.IntRange(0, maxFaces).Draw(t, "faces")
	idx := rapid.Uint32Range(0, numPoints-1)
	faces := make([]geometry.Face, n)
	for i := range faces {
		for k := range faces[i] {
			faces[i][k] = geometry.PointIndex(idx.Draw(t, fmt.Sprintf("face_%d_%d", i, k)))
		}
	}
	return faces
}

// Mesh draws a random mesh whose attributes all use writable types.
func Mesh(t *rapid.T) *geometry.TriMesh {
	numPoints := rapid.Uint32Range(1, 40).Draw(t, "points")
	return Build(t, numPoints, Faces(t, numPoints, 30), AttributeSpecs(t, numPoints, 5))
}

// Build assembles a mesh from faces and attribute specs, attaching the
// attributes in the given order.
func Build(t rapid.TB, numPoints uint32, faces []geometry.Face, specs []geometry.AttributeSpec) *geometry.TriMesh {
	m, err := geometry.NewMesh(numPoints, faces)
	if err != nil {
		t.Fatalf("new mesh: %v", err)
	}
	for _, spec := range specs {
		a, err := geometry.NewPointAttribute(spec)
		if err != nil {
			t.Fatalf("attribute %d: %v", spec.UniqueID, err)
		}
		if err := m.AddAttribute(a); err != nil {
			t.Fatalf("add attribute %d: %v", spec.UniqueID, err)
		}
	}
	return m
}
