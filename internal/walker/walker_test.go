package walker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/TFMV/meshbuf/internal/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"a.mgeo":              "alpha",
		"notes.txt":           "skip me",
		"dir1/b.MGEO":         "bravo",
		"dir1/sub/c.mgeo":     "charlie",
		"dir2/d.mgeo":         "delta",
		"dir2/deeper/x/e.bin": "echo",
	}
	for rel, body := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return root
}

func paths(assets []Asset) []string {
	out := make([]string, len(assets))
	for i, a := range assets {
		out[i] = a.Path
	}
	return out
}

func TestWalkFindsContainers(t *testing.T) {
	root := makeTree(t)
	assets, err := Walk(context.Background(), root, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.mgeo", "dir1/b.MGEO", "dir1/sub/c.mgeo", "dir2/d.mgeo"}, paths(assets))

	for _, a := range assets {
		assert.NoError(t, a.Err)
		body, err := os.ReadFile(a.AbsPath)
		require.NoError(t, err)
		assert.Equal(t, hash.Bytes(body), a.Digest, a.Path)
		assert.Equal(t, int64(len(body)), a.Size)
	}
	assert.Equal(t, "dir1/sub/c", assets[2].Name())
}

func TestWalkOptions(t *testing.T) {
	root := makeTree(t)

	t.Run("max depth", func(t *testing.T) {
		opts := DefaultOptions()
		opts.MaxDepth = 1
		assets, err := Walk(context.Background(), root, opts)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.mgeo"}, paths(assets))
	})

	t.Run("all extensions without digests", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Extensions = nil
		opts.ComputeDigests = false
		assets, err := Walk(context.Background(), root, opts)
		require.NoError(t, err)
		assert.Len(t, assets, 6)
		for _, a := range assets {
			assert.True(t, a.Digest.IsZero())
		}
	})

	t.Run("not a directory", func(t *testing.T) {
		_, err := Walk(context.Background(), filepath.Join(root, "a.mgeo"), DefaultOptions())
		assert.Error(t, err)
	})
}

func TestWalkStreamStopsOnError(t *testing.T) {
	root := makeTree(t)
	stop := errors.New("stop")
	var calls atomic.Int32
	opts := DefaultOptions()
	opts.Workers = 1
	err := WalkStream(context.Background(), root, opts, func(Asset) error {
		calls.Add(1)
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWalkStreamCancelled(t *testing.T) {
	root := makeTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WalkStream(ctx, root, DefaultOptions(), func(Asset) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamChannel(t *testing.T) {
	root := makeTree(t)
	out, errc := Stream(context.Background(), root, DefaultOptions())
	var n int
	for range out {
		n++
	}
	assert.NoError(t, <-errc)
	assert.Equal(t, 4, n)
}
