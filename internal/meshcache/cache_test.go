package meshcache

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/TFMV/meshbuf/internal/geometry"
	"github.com/TFMV/meshbuf/internal/layout"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMesh(t *testing.T) *geometry.TriMesh {
	t.Helper()
	m, err := geometry.Grid(3)
	require.NoError(t, err)
	return m
}

type closingMesh struct {
	*geometry.TriMesh
	closed atomic.Int32
}

func (m *closingMesh) Close() error {
	m.closed.Add(1)
	return nil
}

func TestInsertLayoutWriteRelease(t *testing.T) {
	c := New()
	m := testMesh(t)

	h, err := c.Insert(m)
	require.NoError(t, err)
	assert.NotEqual(t, InvalidHandle, h)
	assert.True(t, c.Contains(h))

	l, err := c.Layout(h)
	require.NoError(t, err)
	assert.Equal(t, layout.Plan(m), l)

	again, err := c.Layout(h)
	require.NoError(t, err)
	assert.Equal(t, l, again, "repeated layout queries are identical")

	buf := make([]byte, l.Size())
	n, err := c.Write(h, buf)
	require.NoError(t, err)
	assert.Equal(t, int(l.Size()), n)

	direct := make([]byte, l.Size())
	_, err = layout.Write(m, direct)
	require.NoError(t, err)
	assert.Equal(t, direct, buf)

	_, err = c.Write(h, buf[:n-1])
	assert.ErrorIs(t, err, layout.ErrShortBuffer)

	c.Release(h)
	assert.False(t, c.Contains(h))
	_, err = c.Layout(h)
	assert.ErrorIs(t, err, ErrNotFound)
	n, err = c.Write(h, buf)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, n)

	c.Release(h)
	c.Release(InvalidHandle)
	assert.Zero(t, c.Len())
}

func TestHandlesNeverReused(t *testing.T) {
	c := New()
	m := testMesh(t)

	h1, err := c.Insert(m)
	require.NoError(t, err)
	c.Release(h1)
	h2, err := c.Insert(m)
	require.NoError(t, err)
	assert.Greater(t, h2, h1)
	assert.False(t, c.Contains(h1))
}

func TestConcurrentInsertsUnique(t *testing.T) {
	c := New()
	m := testMesh(t)

	const workers, perWorker = 16, 200
	handles := make(chan Handle, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				h, err := c.Insert(m)
				if err != nil {
					t.Error(err)
					return
				}
				handles <- h
			}
		}()
	}
	wg.Wait()
	close(handles)

	seen := make(map[Handle]bool)
	for h := range handles {
		require.NotEqual(t, InvalidHandle, h)
		require.False(t, seen[h], "handle %d issued twice", h)
		seen[h] = true
	}
	assert.Len(t, seen, workers*perWorker)
	assert.Equal(t, workers*perWorker, c.Len())
}

func TestConcurrentReleaseDuringWrites(t *testing.T) {
	c := New()
	m := &closingMesh{TriMesh: testMesh(t)}
	size := layout.Plan(m).Size()

	for round := 0; round < 50; round++ {
		h, err := c.Insert(m)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				buf := make([]byte, size)
				n, err := c.Write(h, buf)
				if err != nil {
					assert.ErrorIs(t, err, ErrNotFound)
					return
				}
				assert.Equal(t, int(size), n)
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Release(h)
		}()
		wg.Wait()

		_, err = c.Layout(h)
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, int32(50), m.closed.Load())
}

func TestCloseRejectsInserts(t *testing.T) {
	c := New()
	m := &closingMesh{TriMesh: testMesh(t)}
	h, err := c.Insert(m)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.Equal(t, int32(1), m.closed.Load())
	assert.False(t, c.Contains(h))

	_, err = c.Insert(m)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = c.Insert(nil)
	assert.Error(t, err)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(WithRegisterer(reg))
	m := testMesh(t)

	h, err := c.Insert(m)
	require.NoError(t, err)
	_, err = c.Insert(m)
	require.NoError(t, err)

	buf := make([]byte, layout.Plan(m).Size())
	n, err := c.Write(h, buf)
	require.NoError(t, err)
	c.Release(h)
	_, err = c.Layout(h)
	require.Error(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.metrics.inserts))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.releases))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.entries))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.misses))
	assert.Equal(t, float64(n), testutil.ToFloat64(c.metrics.writtenBytes))

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}
