package geometry

import "fmt"

// Unique ids assigned by Grid.
const (
	GridPositionID int32 = 0
	GridNormalID   int32 = 1
	GridTexCoordID int32 = 2
	GridColorID    int32 = 3
)

// Grid builds a flat n x n quad grid in the XY plane spanning [0, 1],
// triangulated into 2*n*n faces, with float32 positions, normals and
// texture coordinates and normalized uint8 colors.
func Grid(n int) (*TriMesh, error) {
	if n < 1 {
		return nil, fmt.Errorf("grid size must be positive, got %d", n)
	}
	side := n + 1
	numPoints := side * side

	pos := make([]float32, 0, numPoints*3)
	nrm := make([]float32, 0, numPoints*3)
	uv := make([]float32, 0, numPoints*2)
	rgba := make([]uint8, 0, numPoints*4)
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			u, v := float32(x)/float32(n), float32(y)/float32(n)
			pos = append(pos, u, v, 0)
			nrm = append(nrm, 0, 0, 1)
			uv = append(uv, u, 1-v)
			rgba = append(rgba, uint8(u*255), uint8(v*255), 128, 255)
		}
	}

	faces := make([]Face, 0, 2*n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			i := PointIndex(y*side + x)
			right, up := i+1, i+PointIndex(side)
			faces = append(faces, Face{i, right, up + 1}, Face{i, up + 1, up})
		}
	}

	m, err := NewMesh(uint32(numPoints), faces)
	if err != nil {
		return nil, err
	}
	_, colors := Pack(rgba...)
	color, err := NewPointAttribute(AttributeSpec{
		UniqueID:      GridColorID,
		Kind:          KindColor,
		DataType:      TypeUint8,
		NumComponents: 4,
		Normalized:    true,
		Values:        colors,
	})
	if err != nil {
		return nil, err
	}
	position, err := NewAttribute(GridPositionID, KindPosition, 3, pos...)
	if err != nil {
		return nil, err
	}
	normal, err := NewAttribute(GridNormalID, KindNormal, 3, nrm...)
	if err != nil {
		return nil, err
	}
	texcoord, err := NewAttribute(GridTexCoordID, KindTexCoord, 2, uv...)
	if err != nil {
		return nil, err
	}
	for _, a := range []Attribute{position, normal, texcoord, color} {
		if err := m.AddAttribute(a); err != nil {
			return nil, err
		}
	}
	return m, nil
}
