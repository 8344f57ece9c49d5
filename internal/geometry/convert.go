package geometry

import (
	"encoding/binary"
	"math"
)

type numberKind uint8

const (
	numberSigned numberKind = iota
	numberUnsigned
	numberFloat
)

// number is a scalar widened to the largest type of its family.
type number struct {
	kind numberKind
	i    int64
	u    uint64
	f    float64
}

// loadScalar reads one little-endian scalar of type dt from b.
func loadScalar(b []byte, dt DataType) number {
	switch dt {
	case TypeInt8:
		return number{kind: numberSigned, i: int64(int8(b[0]))}
	case TypeUint8:
		return number{kind: numberUnsigned, u: uint64(b[0])}
	case TypeInt16:
		return number{kind: numberSigned, i: int64(int16(binary.LittleEndian.Uint16(b)))}
	case TypeUint16:
		return number{kind: numberUnsigned, u: uint64(binary.LittleEndian.Uint16(b))}
	case TypeInt32:
		return number{kind: numberSigned, i: int64(int32(binary.LittleEndian.Uint32(b)))}
	case TypeUint32:
		return number{kind: numberUnsigned, u: uint64(binary.LittleEndian.Uint32(b))}
	case TypeInt64:
		return number{kind: numberSigned, i: int64(binary.LittleEndian.Uint64(b))}
	case TypeUint64:
		return number{kind: numberUnsigned, u: binary.LittleEndian.Uint64(b)}
	case TypeFloat32:
		return number{kind: numberFloat, f: float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))}
	default:
		return number{kind: numberFloat, f: math.Float64frombits(binary.LittleEndian.Uint64(b))}
	}
}

func signedRange(dt DataType) (int64, int64) {
	switch dt {
	case TypeInt8:
		return math.MinInt8, math.MaxInt8
	case TypeInt16:
		return math.MinInt16, math.MaxInt16
	case TypeInt32:
		return math.MinInt32, math.MaxInt32
	default:
		return math.MinInt64, math.MaxInt64
	}
}

func unsignedMax(dt DataType) uint64 {
	switch dt {
	case TypeUint8:
		return math.MaxUint8
	case TypeUint16:
		return math.MaxUint16
	case TypeUint32:
		return math.MaxUint32
	default:
		return math.MaxUint64
	}
}

// integralMax is the largest value of an integer type as a float, used to
// scale normalized values.
func integralMax(dt DataType) float64 {
	if dt.IsSigned() {
		_, hi := signedRange(dt)
		return float64(hi)
	}
	return float64(unsignedMax(dt))
}

func mask(dt DataType) uint64 {
	size := dt.Size()
	if size >= 8 {
		return math.MaxUint64
	}
	return 1<<(8*uint(size)) - 1
}

// floatToIntegral maps f onto the integer grid of a type whose maximum is
// hi. Normalized values must lie in [0, 1] and are rounded to nearest;
// other values truncate toward zero.
func floatToIntegral(f float64, normalized bool, hi float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if normalized {
		if f < 0 || f > 1 {
			return 0, false
		}
		return math.Floor(f*hi + 0.5), true
	}
	return math.Trunc(f), true
}

// convertNumber converts n, read as type from, to the raw bits of type to.
// Integer targets reject values outside their range.
func convertNumber(n number, from, to DataType, normalized bool) (uint64, bool) {
	switch {
	case to.IsFloat():
		var f float64
		switch n.kind {
		case numberFloat:
			f = n.f
		case numberSigned:
			f = float64(n.i)
			if normalized {
				f /= integralMax(from)
			}
		case numberUnsigned:
			f = float64(n.u)
			if normalized {
				f /= integralMax(from)
			}
		}
		if to == TypeFloat32 {
			return uint64(math.Float32bits(float32(f))), true
		}
		return math.Float64bits(f), true

	case to.IsSigned():
		lo, hi := signedRange(to)
		var v int64
		switch n.kind {
		case numberFloat:
			f, ok := floatToIntegral(n.f, normalized, float64(hi))
			if !ok || f < float64(lo) || f >= float64(hi)+1 {
				return 0, false
			}
			v = int64(f)
		case numberSigned:
			if n.i < lo || n.i > hi {
				return 0, false
			}
			v = n.i
		case numberUnsigned:
			if n.u > uint64(hi) {
				return 0, false
			}
			v = int64(n.u)
		}
		return uint64(v) & mask(to), true

	case to.Size() > 0:
		hi := unsignedMax(to)
		var v uint64
		switch n.kind {
		case numberFloat:
			f, ok := floatToIntegral(n.f, normalized, float64(hi))
			if !ok || f < 0 || f >= float64(hi)+1 {
				return 0, false
			}
			v = uint64(f)
		case numberSigned:
			if n.i < 0 || uint64(n.i) > hi {
				return 0, false
			}
			v = uint64(n.i)
		case numberUnsigned:
			if n.u > hi {
				return 0, false
			}
			v = n.u
		}
		return v, true
	}
	return 0, false
}
