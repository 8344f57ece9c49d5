package hash

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesMatchesFileAndReader(t *testing.T) {
	data := []byte("This is some test data.")
	path := filepath.Join(t.TempDir(), "asset.mgeo")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	want := Bytes(data)
	assert.Equal(t, "477487010f611fc4cef99d0ca765636c70d84f743fb059dc5683458ad9603d54", want.String())

	got, n, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, int64(len(data)), n)

	got, n, err = Reader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, int64(len(data)), n)
}

func TestReaderLargerThanChunk(t *testing.T) {
	data := bytes.Repeat([]byte{0xab, 0xcd, 0xef}, readChunk)
	got, n, err := Reader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Bytes(data), got)
	assert.Equal(t, int64(len(data)), n)
}

func TestFileMissing(t *testing.T) {
	_, _, err := File(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err) || strings.Contains(err.Error(), "failed to open"))
}

func TestParse(t *testing.T) {
	d := Bytes([]byte("mesh"))
	back, err := Parse(d.String())
	require.NoError(t, err)
	assert.Equal(t, d, back)
	assert.False(t, d.IsZero())
	assert.True(t, Digest{}.IsZero())

	for _, bad := range []string{"", "zz", "abcd"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}
