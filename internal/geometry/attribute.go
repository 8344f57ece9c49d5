package geometry

import (
	"encoding/binary"
	"fmt"
	"math"
)

// AttributeSpec describes a point attribute backed by a packed value array.
type AttributeSpec struct {
	UniqueID      int32
	Kind          AttributeKind
	DataType      DataType
	NumComponents int
	// Normalized marks integer values that represent the range [0, 1]
	// (or [-1, 1] for signed types) when converted to floating point.
	Normalized bool
	// Values holds the attribute values, little-endian, NumComponents
	// scalars per value.
	Values []byte
	// Mapping maps point index to value index. Empty means identity.
	Mapping []uint32
}

// PointAttribute is an Attribute stored as a packed little-endian array
// with an optional point-to-value mapping.
type PointAttribute struct {
	uniqueID      int32
	kind          AttributeKind
	dataType      DataType
	numComponents int
	normalized    bool
	values        []byte
	mapping       []uint32
	stride        int
}

// NewPointAttribute validates spec and builds a PointAttribute. The value
// and mapping slices are retained, not copied.
func NewPointAttribute(spec AttributeSpec) (*PointAttribute, error) {
	size := spec.DataType.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: unsupported data type %s", ErrInvalidAttribute, spec.DataType)
	}
	if spec.NumComponents < 1 || spec.NumComponents > MaxComponents {
		return nil, fmt.Errorf("%w: %d components", ErrInvalidAttribute, spec.NumComponents)
	}
	stride := size * spec.NumComponents
	if len(spec.Values)%stride != 0 {
		return nil, fmt.Errorf("%w: %d value bytes not a multiple of %d", ErrInvalidAttribute, len(spec.Values), stride)
	}
	numValues := len(spec.Values) / stride
	for p, v := range spec.Mapping {
		if int(v) >= numValues {
			return nil, fmt.Errorf("%w: point %d maps to value %d of %d", ErrInvalidAttribute, p, v, numValues)
		}
	}
	return &PointAttribute{
		uniqueID:      spec.UniqueID,
		kind:          spec.Kind,
		dataType:      spec.DataType,
		numComponents: spec.NumComponents,
		normalized:    spec.Normalized,
		values:        spec.Values,
		mapping:       spec.Mapping,
		stride:        stride,
	}, nil
}

func (a *PointAttribute) UniqueID() int32       { return a.uniqueID }
func (a *PointAttribute) Kind() AttributeKind   { return a.kind }
func (a *PointAttribute) DataType() DataType    { return a.dataType }
func (a *PointAttribute) NumComponents() int    { return a.numComponents }
func (a *PointAttribute) Normalized() bool      { return a.normalized }
func (a *PointAttribute) Values() []byte        { return a.values }
func (a *PointAttribute) Mapping() []uint32     { return a.mapping }
func (a *PointAttribute) NumValues() int        { return len(a.values) / a.stride }
func (a *PointAttribute) IdentityMapping() bool { return len(a.mapping) == 0 }

// MappedIndex returns the value index for point p.
func (a *PointAttribute) MappedIndex(p PointIndex) (int, bool) {
	if a.IdentityMapping() {
		if int(p) >= a.NumValues() {
			return 0, false
		}
		return int(p), true
	}
	if int(p) >= len(a.mapping) {
		return 0, false
	}
	return int(a.mapping[p]), true
}

// Covers reports whether every point below n resolves to a value.
func (a *PointAttribute) Covers(n uint32) bool {
	if a.IdentityMapping() {
		return uint64(a.NumValues()) >= uint64(n)
	}
	return uint64(len(a.mapping)) >= uint64(n)
}

// ConvertValue implements Attribute.
func (a *PointAttribute) ConvertValue(p PointIndex, dt DataType, dst *Components) bool {
	idx, ok := a.MappedIndex(p)
	if !ok {
		return false
	}
	size := a.dataType.Size()
	base := idx * a.stride
	var out Components
	for c := 0; c < a.numComponents; c++ {
		off := base + c*size
		n := loadScalar(a.values[off:off+size], a.dataType)
		bits, ok := convertNumber(n, a.dataType, dt, a.normalized)
		if !ok {
			return false
		}
		out[c] = bits
	}
	*dst = out
	return true
}

// Scalar is the set of Go types that map onto a DataType.
type Scalar interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// TypeOf returns the DataType matching T.
func TypeOf[T Scalar]() DataType {
	var zero T
	switch any(zero).(type) {
	case int8:
		return TypeInt8
	case uint8:
		return TypeUint8
	case int16:
		return TypeInt16
	case uint16:
		return TypeUint16
	case int32:
		return TypeInt32
	case uint32:
		return TypeUint32
	case int64:
		return TypeInt64
	case uint64:
		return TypeUint64
	case float32:
		return TypeFloat32
	case float64:
		return TypeFloat64
	}
	return TypeInvalid
}

// Pack encodes vals as a little-endian value array of the matching type.
func Pack[T Scalar](vals ...T) (DataType, []byte) {
	dt := TypeOf[T]()
	b := make([]byte, 0, len(vals)*dt.Size())
	for _, v := range vals {
		switch x := any(v).(type) {
		case int8:
			b = append(b, byte(x))
		case uint8:
			b = append(b, x)
		case int16:
			b = binary.LittleEndian.AppendUint16(b, uint16(x))
		case uint16:
			b = binary.LittleEndian.AppendUint16(b, x)
		case int32:
			b = binary.LittleEndian.AppendUint32(b, uint32(x))
		case uint32:
			b = binary.LittleEndian.AppendUint32(b, x)
		case int64:
			b = binary.LittleEndian.AppendUint64(b, uint64(x))
		case uint64:
			b = binary.LittleEndian.AppendUint64(b, x)
		case float32:
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(x))
		case float64:
			b = binary.LittleEndian.AppendUint64(b, math.Float64bits(x))
		}
	}
	return dt, b
}

// NewAttribute packs vals into an identity-mapped PointAttribute.
func NewAttribute[T Scalar](uniqueID int32, kind AttributeKind, numComponents int, vals ...T) (*PointAttribute, error) {
	dt, b := Pack(vals...)
	return NewPointAttribute(AttributeSpec{
		UniqueID:      uniqueID,
		Kind:          kind,
		DataType:      dt,
		NumComponents: numComponents,
		Values:        b,
	})
}
