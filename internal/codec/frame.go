// Package codec reads and writes MGEO containers: a small fixed header
// followed by a zstd-compressed FlatBuffers geometry payload.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/TFMV/meshbuf/schema/meshbuf"
)

const (
	// Magic opens every container.
	Magic = "MGEO"
	// Version is the container version written by this package.
	Version = 1
	// HeaderSize is the byte length of the fixed header.
	HeaderSize = 20
	// DefaultMaxPayload bounds the decompressed payload size.
	DefaultMaxPayload = 1 << 30
)

var (
	// ErrBadMagic is returned when the input is not an MGEO container.
	ErrBadMagic = errors.New("not an MGEO container")
	// ErrUnsupportedVersion is returned for unknown container versions.
	ErrUnsupportedVersion = errors.New("unsupported container version")
	// ErrTooLarge is returned when the payload exceeds the decoder limit.
	ErrTooLarge = errors.New("payload too large")
	// ErrChecksum is returned when the payload checksum does not match.
	ErrChecksum = errors.New("payload checksum mismatch")
	// ErrCorrupt is returned for payloads that do not describe valid geometry.
	ErrCorrupt = errors.New("corrupt geometry payload")
	// ErrNotMesh is returned when a point cloud is decoded as a mesh.
	ErrNotMesh = errors.New("container holds a point cloud, not a mesh")
)

// Header is the fixed container header.
//
//	magic[4] version[1] kind[1] reserved[2] raw_length[4] xxhash64[8]
//
// Integers are little-endian.
type Header struct {
	Version   uint8
	Kind      meshbuf.GeometryKind
	RawLength uint32
	Checksum  uint64
}

// AppendTo appends the encoded header to b.
func (h Header) AppendTo(b []byte) []byte {
	b = append(b, Magic...)
	b = append(b, h.Version, byte(h.Kind), 0, 0)
	b = binary.LittleEndian.AppendUint32(b, h.RawLength)
	return binary.LittleEndian.AppendUint64(b, h.Checksum)
}

// ParseHeader decodes the header of data and returns it with the
// compressed body that follows.
func ParseHeader(data []byte) (Header, []byte, error) {
	if len(data) < HeaderSize || string(data[:4]) != Magic {
		return Header{}, nil, ErrBadMagic
	}
	h := Header{
		Version:   data[4],
		Kind:      meshbuf.GeometryKind(data[5]),
		RawLength: binary.LittleEndian.Uint32(data[8:12]),
		Checksum:  binary.LittleEndian.Uint64(data[12:20]),
	}
	if h.Version != Version {
		return Header{}, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if h.Kind != meshbuf.GeometryKindPointCloud && h.Kind != meshbuf.GeometryKindMesh {
		return Header{}, nil, fmt.Errorf("%w: unknown geometry kind %d", ErrCorrupt, h.Kind)
	}
	return h, data[HeaderSize:], nil
}
