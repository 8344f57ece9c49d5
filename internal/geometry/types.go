package geometry

import (
	"errors"
	"fmt"
)

// MaxComponents is the largest number of components a single attribute
// value may carry.
const MaxComponents = 4

var (
	// ErrNoPosition is returned when a point cloud has no position attribute.
	ErrNoPosition = errors.New("no position attribute")
	// ErrDuplicateAttribute is returned when two attributes share a unique id.
	ErrDuplicateAttribute = errors.New("duplicate attribute unique id")
	// ErrInvalidAttribute is returned for malformed attribute definitions.
	ErrInvalidAttribute = errors.New("invalid attribute")
	// ErrInvalidFace is returned when a face references a missing point.
	ErrInvalidFace = errors.New("face index out of range")
)

// DataType identifies the scalar type of attribute components.
type DataType uint8

const (
	TypeInvalid DataType = iota
	TypeInt8
	TypeUint8
	TypeInt16
	TypeUint16
	TypeInt32
	TypeUint32
	TypeInt64
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeBool
)

// Size returns the byte width of one component of type dt, or 0 when the
// type has no fixed width.
func (dt DataType) Size() int {
	switch dt {
	case TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32:
		return 4
	case TypeInt64, TypeUint64, TypeFloat64:
		return 8
	default:
		return 0
	}
}

// IsFloat reports whether dt is a floating point type.
func (dt DataType) IsFloat() bool {
	return dt == TypeFloat32 || dt == TypeFloat64
}

// IsSigned reports whether dt is a signed integer type.
func (dt DataType) IsSigned() bool {
	switch dt {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		return true
	}
	return false
}

func (dt DataType) String() string {
	switch dt {
	case TypeInt8:
		return "int8"
	case TypeUint8:
		return "uint8"
	case TypeInt16:
		return "int16"
	case TypeUint16:
		return "uint16"
	case TypeInt32:
		return "int32"
	case TypeUint32:
		return "uint32"
	case TypeInt64:
		return "int64"
	case TypeUint64:
		return "uint64"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	case TypeBool:
		return "bool"
	default:
		return fmt.Sprintf("invalid(%d)", uint8(dt))
	}
}

// AttributeKind is the semantic meaning of an attribute.
type AttributeKind uint8

const (
	KindPosition AttributeKind = iota
	KindNormal
	KindColor
	KindTexCoord
	KindGeneric
)

func (k AttributeKind) String() string {
	switch k {
	case KindPosition:
		return "position"
	case KindNormal:
		return "normal"
	case KindColor:
		return "color"
	case KindTexCoord:
		return "texcoord"
	case KindGeneric:
		return "generic"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// PointIndex addresses one point (vertex) of a point cloud or mesh.
type PointIndex uint32

// Face is a triangle given as three point indices in winding order.
type Face [3]PointIndex

// Components holds up to MaxComponents scalars of a single data type. Each
// slot stores the raw bit pattern of the scalar, zero-extended to 64 bits:
// math.Float32bits for float32, the two's complement bits for signed
// integers.
type Components [MaxComponents]uint64

// Attribute is a per-point value array attached to a point cloud.
type Attribute interface {
	// UniqueID is the decoder-assigned identifier of the attribute.
	UniqueID() int32
	Kind() AttributeKind
	DataType() DataType
	// NumComponents is the dimensionality of one value, 1 to 4.
	NumComponents() int
	// ConvertValue resolves the value mapped to point p and converts each of
	// its components to dt, storing the raw bits in dst. Slots beyond
	// NumComponents are zeroed. It returns false when p has no mapped value
	// or a component cannot be represented in dt.
	ConvertValue(p PointIndex, dt DataType, dst *Components) bool
}

// PointCloud is a decoded set of points with attributes.
type PointCloud interface {
	NumPoints() uint32
	NumAttributes() int
	Attribute(i int) Attribute
}

// Mesh is a point cloud with triangular faces.
type Mesh interface {
	PointCloud
	NumFaces() uint32
	Face(i uint32) Face
}

// Decoder turns a compressed byte stream into geometry. Implementations
// must not retain data after returning.
type Decoder interface {
	DecodeMesh(data []byte) (Mesh, error)
	DecodePointCloud(data []byte) (PointCloud, error)
}

// NamedAttribute returns the first attribute of the given kind, or nil.
func NamedAttribute(pc PointCloud, kind AttributeKind) Attribute {
	for i := 0; i < pc.NumAttributes(); i++ {
		if a := pc.Attribute(i); a.Kind() == kind {
			return a
		}
	}
	return nil
}
