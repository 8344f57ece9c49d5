package geometry

import (
	"fmt"
	"math"
)

// Cloud is an in-memory PointCloud.
type Cloud struct {
	numPoints uint32
	attrs     []Attribute
	ids       map[int32]struct{}
}

// NewCloud returns an empty point cloud of numPoints points.
func NewCloud(numPoints uint32) *Cloud {
	return &Cloud{
		numPoints: numPoints,
		ids:       make(map[int32]struct{}),
	}
}

// AddAttribute attaches a to the cloud. Attributes keep the order in which
// they were added; unique ids must be distinct.
func (c *Cloud) AddAttribute(a Attribute) error {
	if a == nil {
		return fmt.Errorf("%w: nil attribute", ErrInvalidAttribute)
	}
	if n := a.NumComponents(); n < 1 || n > MaxComponents {
		return fmt.Errorf("%w: attribute %d has %d components", ErrInvalidAttribute, a.UniqueID(), n)
	}
	if _, dup := c.ids[a.UniqueID()]; dup {
		return fmt.Errorf("%w: %d", ErrDuplicateAttribute, a.UniqueID())
	}
	if pa, ok := a.(*PointAttribute); ok && !pa.Covers(c.numPoints) {
		return fmt.Errorf("%w: attribute %d does not cover %d points", ErrInvalidAttribute, a.UniqueID(), c.numPoints)
	}
	c.ids[a.UniqueID()] = struct{}{}
	c.attrs = append(c.attrs, a)
	return nil
}

func (c *Cloud) NumPoints() uint32 { return c.numPoints }

func (c *Cloud) NumAttributes() int { return len(c.attrs) }

func (c *Cloud) Attribute(i int) Attribute { return c.attrs[i] }

// TriMesh is an in-memory triangle Mesh.
type TriMesh struct {
	*Cloud
	faces []Face
}

// NewMesh returns a mesh of numPoints points and the given faces. Every face
// index must address an existing point.
func NewMesh(numPoints uint32, faces []Face) (*TriMesh, error) {
	for i, f := range faces {
		for _, p := range f {
			if uint32(p) >= numPoints {
				return nil, fmt.Errorf("%w: face %d references point %d of %d", ErrInvalidFace, i, p, numPoints)
			}
		}
	}
	return &TriMesh{Cloud: NewCloud(numPoints), faces: faces}, nil
}

func (m *TriMesh) NumFaces() uint32 { return uint32(len(m.faces)) }

func (m *TriMesh) Face(i uint32) Face { return m.faces[i] }

// Positions extracts the position attribute of pc as float32 triples in
// point order.
func Positions(pc PointCloud) ([]float32, error) {
	a := NamedAttribute(pc, KindPosition)
	if a == nil {
		return nil, ErrNoPosition
	}
	n := pc.NumPoints()
	out := make([]float32, 0, int(n)*3)
	var v Components
	for p := uint32(0); p < n; p++ {
		if !a.ConvertValue(PointIndex(p), TypeFloat32, &v) {
			return nil, fmt.Errorf("%w: point %d not convertible to float32", ErrInvalidAttribute, p)
		}
		for c := 0; c < 3; c++ {
			out = append(out, math.Float32frombits(uint32(v[c])))
		}
	}
	return out, nil
}
