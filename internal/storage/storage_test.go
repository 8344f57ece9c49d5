package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/TFMV/meshbuf/internal/geometry"
	"github.com/TFMV/meshbuf/internal/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, opts ...Option) *BufferStore {
	t.Helper()
	s, err := NewBufferStore(t.TempDir(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func gridBuffer(t *testing.T, n int) ([]byte, *layout.Layout) {
	t.Helper()
	m, err := geometry.Grid(n)
	require.NoError(t, err)
	l := layout.Plan(m)
	buf := make([]byte, l.Size())
	_, err = layout.Write(m, buf)
	require.NoError(t, err)
	return buf, l
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newStore(t, WithCacheSize(0))
	data, l := gridBuffer(t, 16)

	require.NoError(t, s.Put("terrain/tile_0", data, l))

	assert.False(t, s.cached("terrain/tile_0"))
	got, err := s.Get("terrain/tile_0")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	gotLayout, err := s.Layout("terrain/tile_0")
	require.NoError(t, err)
	assert.Equal(t, l, gotLayout)

	raw, err := s.LayoutJSON("terrain/tile_0")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"index_width": 2`)

	info, err := os.Stat(filepath.Join(s.Dir(), "terrain", "tile_0"+BufferFileExt))
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(len(data)))
}

func TestPutWithoutLayout(t *testing.T) {
	s := newStore(t)
	data, l := gridBuffer(t, 1)
	require.NoError(t, s.Put("a", data, l))
	require.NoError(t, s.Put("a", []byte{1, 2, 3}, nil))

	_, err := s.Layout("a")
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestPutRejectsMismatchedLayout(t *testing.T) {
	s := newStore(t)
	data, l := gridBuffer(t, 2)
	err := s.Put("bad", data[:len(data)-1], l)
	assert.ErrorIs(t, err, layout.ErrLayoutMismatch)
}

func TestInvalidNames(t *testing.T) {
	s := newStore(t)
	for _, name := range []string{"", ".", "..", "../escape", "a/../../b", "/abs"} {
		err := s.Put(name, []byte{1}, nil)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestListAndDelete(t *testing.T) {
	s := newStore(t)
	for _, name := range []string{"b", "a/x", "a/y"} {
		require.NoError(t, s.Put(name, []byte(name), nil))
	}
	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a/x", "a/y", "b"}, names)

	require.NoError(t, s.Delete("a/x"))
	_, err = s.Get("a/x")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete("a/x"), ErrNotFound)

	names, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a/y", "b"}, names)
}

func TestCacheEviction(t *testing.T) {
	s := newStore(t, WithCacheSize(2))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Put(fmt.Sprint(i), []byte{byte(i)}, nil))
	}
	assert.False(t, s.cached("0"))
	assert.True(t, s.cached("1"))
	assert.True(t, s.cached("2"))

	_, err := s.Get("1")
	require.NoError(t, err)
	require.NoError(t, s.Put("3", []byte{3}, nil))
	assert.True(t, s.cached("1"), "recently read entry survives")
	assert.False(t, s.cached("2"))

	got, err := s.Get("0")
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, got)
}

func TestConcurrentPutGet(t *testing.T) {
	s := newStore(t, WithCacheSize(4))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("mesh/%d", i)
			body := bytes.Repeat([]byte{byte(i)}, 1024)
			if err := s.Put(name, body, nil); err != nil {
				t.Error(err)
				return
			}
			got, err := s.Get(name)
			if err != nil {
				t.Error(err)
				return
			}
			assert.Equal(t, body, got)
		}(i)
	}
	wg.Wait()
}
