package layout

import (
	"cmp"
	"slices"

	"github.com/TFMV/meshbuf/internal/geometry"
)

// Ordered returns the attributes of pc sorted by ascending unique id. Both
// the planner and the writer walk attributes in this order.
func Ordered(pc geometry.PointCloud) []geometry.Attribute {
	attrs := make([]geometry.Attribute, pc.NumAttributes())
	for i := range attrs {
		attrs[i] = pc.Attribute(i)
	}
	slices.SortStableFunc(attrs, func(a, b geometry.Attribute) int {
		return cmp.Compare(a.UniqueID(), b.UniqueID())
	})
	return attrs
}
