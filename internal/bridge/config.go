package bridge

import (
	"fmt"
	"math"

	"github.com/TFMV/meshbuf/internal/layout"
)

// AttributeDataType is the wire code of an attribute's element type as
// reported in a MeshConfig.
type AttributeDataType uint32

const (
	Int8 AttributeDataType = iota
	UInt8
	Int16
	UInt16
	Int32
	UInt32
	Float32
)

// Size is the byte width of one element, or 0 for unknown codes.
func (t AttributeDataType) Size() uint32 {
	switch t {
	case Int8, UInt8:
		return 1
	case Int16, UInt16:
		return 2
	case Int32, UInt32, Float32:
		return 4
	default:
		return 0
	}
}

func (t AttributeDataType) String() string {
	return layout.TypeCode(t).String()
}

// MeshAttribute is the placement of one attribute in the output buffer.
type MeshAttribute struct {
	Dim      uint32            `json:"dim"`
	DataType AttributeDataType `json:"data_type"`
	Offset   uint32            `json:"offset"`
	Length   uint32            `json:"length"`
	UniqueID int32             `json:"unique_id"`
}

// MeshConfig describes a decoded mesh buffer: the index block followed by
// Attributes in ascending unique id order.
type MeshConfig struct {
	VertexCount uint32          `json:"vertex_count"`
	IndexCount  uint32          `json:"index_count"`
	IndexLength uint32          `json:"index_length"`
	Attributes  []MeshAttribute `json:"attributes"`
}

// NewMeshConfig returns a config with an index block sized by the index
// width rule and no attributes.
func NewMeshConfig(vertexCount, indexCount uint32) *MeshConfig {
	return &MeshConfig{
		VertexCount: vertexCount,
		IndexCount:  indexCount,
		IndexLength: indexCount * uint32(layout.IndexWidthFor(uint64(indexCount))),
	}
}

// EstimateBufferSize is the byte length of the buffer the config describes.
func (c *MeshConfig) EstimateBufferSize() int {
	size := int(c.IndexLength)
	for _, a := range c.Attributes {
		size += int(a.Length)
	}
	return size
}

// AddAttribute appends an attribute of dim components of type t, placed
// directly after the last one.
func (c *MeshConfig) AddAttribute(dim uint32, t AttributeDataType) {
	offset := c.IndexLength
	if n := len(c.Attributes); n > 0 {
		last := c.Attributes[n-1]
		offset = last.Offset + last.Length
	}
	c.Attributes = append(c.Attributes, MeshAttribute{
		Dim:      dim,
		DataType: t,
		Offset:   offset,
		Length:   c.VertexCount * dim * t.Size(),
		UniqueID: int32(len(c.Attributes)),
	})
}

// configFromLayout narrows a planned layout to the 32-bit config. Segment
// lengths are taken from the plan, so degraded type codes keep their true
// byte length.
func configFromLayout(l *layout.Layout) (MeshConfig, error) {
	if l.IndexCount > math.MaxUint32 || l.Size() > math.MaxUint32 {
		return MeshConfig{}, fmt.Errorf("layout of %d bytes exceeds 32-bit config", l.Size())
	}
	cfg := MeshConfig{
		VertexCount: l.VertexCount,
		IndexCount:  uint32(l.IndexCount),
		IndexLength: uint32(l.IndexLength),
		Attributes:  make([]MeshAttribute, len(l.Attributes)),
	}
	for i, s := range l.Attributes {
		cfg.Attributes[i] = MeshAttribute{
			Dim:      uint32(s.NumComponents),
			DataType: AttributeDataType(s.TypeCode),
			Offset:   uint32(s.Offset),
			Length:   uint32(s.Length),
			UniqueID: s.UniqueID,
		}
	}
	return cfg, nil
}
