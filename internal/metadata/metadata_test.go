package metadata

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/TFMV/meshbuf/internal/geometry"
	"github.com/TFMV/meshbuf/internal/hash"
	"github.com/TFMV/meshbuf/internal/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openIndex(t *testing.T) *Index {
	t.Helper()
	x, err := Open(InMemory)
	require.NoError(t, err)
	t.Cleanup(func() { x.Close() })
	return x
}

func record(name string, size uint64, ids ...int32) AssetRecord {
	return AssetRecord{
		Name:         name,
		Digest:       hash.Bytes([]byte(name)).String(),
		BufferSize:   size,
		AttributeIDs: ids,
	}
}

func names(recs []AssetRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Name
	}
	return out
}

func TestNewRecordFromLayout(t *testing.T) {
	m, err := geometry.Grid(3)
	require.NoError(t, err)
	l := layout.Plan(m)
	d := hash.Bytes([]byte("container"))

	rec := NewRecord("tiles/a", "tiles/a.mgeo", d, 321, l)
	assert.Equal(t, l.Size(), rec.BufferSize)
	assert.Equal(t, uint32(16), rec.VertexCount)
	assert.Equal(t, uint64(54), rec.IndexCount)
	assert.Equal(t, 2, rec.IndexWidth)
	assert.Equal(t, []int32{0, 1, 2, 3}, rec.AttributeIDs)
	assert.Equal(t, d.String(), rec.Digest)
	assert.False(t, rec.Degraded)
	assert.True(t, rec.HasAttribute(2))
	assert.False(t, rec.HasAttribute(7))
}

func TestPutGetDelete(t *testing.T) {
	x := openIndex(t)
	rec := record("a", 100, 0, 1)
	require.NoError(t, x.Put(rec))

	got, err := x.Get("a")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	n, err := x.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, x.Delete("a"))
	_, err = x.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, x.Delete("a"), ErrNotFound)
	assert.Error(t, x.Put(AssetRecord{}))
}

func TestFind(t *testing.T) {
	x := openIndex(t)
	for _, rec := range []AssetRecord{
		record("rocks/big", 5000, 0, 1, 2),
		record("rocks/small", 50, 0),
		record("trees/oak", 700, 0, 3),
		record("trees/pine", 1200, 0, 1),
	} {
		require.NoError(t, x.Put(rec))
	}

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"all by size", Query{}, []string{"rocks/small", "trees/oak", "trees/pine", "rocks/big"}},
		{"min size", Query{MinSize: 700}, []string{"trees/oak", "trees/pine", "rocks/big"}},
		{"size range", Query{MinSize: 100, MaxSize: 1200}, []string{"trees/oak", "trees/pine"}},
		{"attribute", Query{AttributeID: ptr(int32(1))}, []string{"trees/pine", "rocks/big"}},
		{"pattern", Query{Pattern: "rocks/*"}, []string{"rocks/small", "rocks/big"}},
		{"digest", Query{Digest: hash.Bytes([]byte("trees/oak")).String()}, []string{"trees/oak"}},
		{"nothing", Query{MinSize: 10000}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := x.Find(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
		})
	}

	got, err := x.FindByDigest(hash.Bytes([]byte("rocks/big")))
	require.NoError(t, err)
	assert.Equal(t, []string{"rocks/big"}, names(got))

	_, err = x.Find(Query{Pattern: "["})
	assert.Error(t, err)
}

func TestLargestAndDuplicates(t *testing.T) {
	x := openIndex(t)
	for i, size := range []uint64{300, 100, 500, 200} {
		require.NoError(t, x.Put(record(fmt.Sprintf("m%d", i), size)))
	}
	dup := record("copy", 100)
	dup.Digest = record("m1", 0).Digest
	require.NoError(t, x.Put(dup))

	top, err := x.Largest(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m0"}, names(top))

	all, err := x.Largest(10)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	groups, err := x.Duplicates()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.ElementsMatch(t, []string{"m1", "copy"}, names(groups[dup.Digest]))
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	x, err := Open(path)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, x.Put(record(fmt.Sprintf("m%d", i), uint64(i*10))))
	}
	require.NoError(t, x.Put(record("m0", 999)))
	require.NoError(t, x.Shrink())
	require.NoError(t, x.Close())

	x, err = Open(path)
	require.NoError(t, err)
	defer x.Close()
	n, err := x.Len()
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	rec, err := x.Get("m0")
	require.NoError(t, err)
	assert.Equal(t, uint64(999), rec.BufferSize)
}

func ptr[T any](v T) *T { return &v }
