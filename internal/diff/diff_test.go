package diff

import (
	"context"
	"errors"
	"testing"

	"github.com/TFMV/meshbuf/internal/geometry"
	"github.com/TFMV/meshbuf/internal/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gridLayout(t *testing.T, n int) *layout.Layout {
	t.Helper()
	m, err := geometry.Grid(n)
	require.NoError(t, err)
	return layout.Plan(m)
}

func TestCompareIdenticalLayouts(t *testing.T) {
	assert.Empty(t, CompareLayouts(gridLayout(t, 4), gridLayout(t, 4)))
}

func TestCompareLayouts(t *testing.T) {
	old := gridLayout(t, 2)
	changed := gridLayout(t, 3)

	// Drop the normal, degrade the color and add a generic attribute.
	changed.Attributes = append(changed.Attributes[:1], changed.Attributes[2:]...)
	changed.Attributes[2].DataType = geometry.TypeFloat64
	changed.Attributes[2].Degraded = true
	changed.Attributes = append(changed.Attributes, layout.Segment{
		UniqueID:      7,
		Kind:          geometry.KindGeneric,
		NumComponents: 1,
		DataType:      geometry.TypeFloat32,
		Length:        64,
	})

	diffs := CompareLayouts(old, changed)
	require.Len(t, diffs, 6)

	assert.Equal(t, "Modified", diffs[0].Type)
	assert.Equal(t, "index", diffs[0].Path)
	assert.Contains(t, diffs[0].Details, "vertices 9 -> 16")

	assert.Equal(t, "Modified", diffs[1].Type)
	assert.Equal(t, "attribute 0", diffs[1].Path)

	assert.Equal(t, "Deleted", diffs[2].Type)
	assert.Equal(t, "attribute 1", diffs[2].Path)

	assert.Equal(t, "attribute 2", diffs[3].Path)

	assert.Equal(t, "attribute 3", diffs[4].Path)
	assert.Contains(t, diffs[4].Details, "degraded false -> true")

	assert.Equal(t, "New", diffs[5].Type)
	assert.Equal(t, "attribute 7", diffs[5].Path)
	assert.Contains(t, diffs[5].String(), "New: attribute 7 (")
}

func TestCompareLoadsBothSources(t *testing.T) {
	layouts := map[string]*layout.Layout{
		"a": gridLayout(t, 2),
		"b": gridLayout(t, 2),
	}
	load := func(_ context.Context, src string) (*layout.Layout, error) {
		l, ok := layouts[src]
		if !ok {
			return nil, errors.New("missing")
		}
		return l, nil
	}

	diffs, err := Compare(context.Background(), "a", "b", load)
	require.NoError(t, err)
	assert.Empty(t, diffs)

	_, err = Compare(context.Background(), "a", "nope", load)
	assert.ErrorContains(t, err, "error loading nope")
}

func TestCompareCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Compare(ctx, "a", "b", func(context.Context, string) (*layout.Layout, error) {
		t.Fatal("load called after cancel")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrOperationCanceled)
}
