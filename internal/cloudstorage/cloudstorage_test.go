package cloudstorage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thanos-io/objstore"
	"gopkg.in/yaml.v3"
)

func TestParseDestination(t *testing.T) {
	tests := []struct {
		name        string
		destination string
		wantType    StorageType
		wantBucket  string
		wantPrefix  string
		wantErr     bool
	}{
		{"s3", "s3://meshes/exports/v1", S3Storage, "meshes", "exports/v1", false},
		{"gcs", "gcs://meshes/", GCSStorage, "meshes", "", false},
		{"file", "file:///var/lib/meshes", FileStorage, "/var/lib/meshes", "", false},
		{"unsupported scheme", "ftp://meshes/x", "", "", "", true},
		{"missing host", "s3:meshes/x", "", "", "", true},
		{"no scheme", "meshes/x", "", "", "", true},
		{"empty file path", "file://", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, gotBucket, gotPrefix, err := ParseDestination(tt.destination)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, gotType)
			assert.Equal(t, tt.wantBucket, gotBucket)
			assert.Equal(t, tt.wantPrefix, gotPrefix)
		})
	}
}

func TestBucketConfig(t *testing.T) {
	conf, err := BucketConfig(FileStorage, "/tmp/meshes")
	require.NoError(t, err)
	var parsed struct {
		Type   string            `yaml:"type"`
		Config map[string]string `yaml:"config"`
	}
	require.NoError(t, yaml.Unmarshal(conf, &parsed))
	assert.Equal(t, "FILESYSTEM", parsed.Type)
	assert.Equal(t, "/tmp/meshes", parsed.Config["directory"])

	_, err = BucketConfig("ftp", "x")
	assert.Error(t, err)
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "a/b.bin", ObjectName("", "a/b.bin"))
	assert.Equal(t, "p/a/b.bin", ObjectName("p/", "a/b.bin"))
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	cs := New(objstore.NewInMemBucket(), "/exports/")
	assert.Equal(t, "exports", cs.Prefix())

	data := bytes.Repeat([]byte{1, 2, 3, 4}, 1000)
	layoutJSON := []byte(`{"vertex_count":4}`)
	require.NoError(t, cs.ExportBuffer(ctx, "tiles/a", data, layoutJSON))
	require.NoError(t, cs.ExportBuffer(ctx, "b", []byte{9}, nil))

	ok, err := cs.Exists(ctx, "tiles/a")
	require.NoError(t, err)
	assert.True(t, ok)

	names, err := cs.Exported(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "tiles/a"}, names)

	gotData, gotLayout, err := cs.ImportBuffer(ctx, "tiles/a")
	require.NoError(t, err)
	assert.Equal(t, data, gotData)
	assert.Equal(t, layoutJSON, gotLayout)

	gotData, gotLayout, err = cs.ImportBuffer(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, gotData)
	assert.Nil(t, gotLayout)

	require.NoError(t, cs.Delete(ctx, "tiles/a"))
	ok, err = cs.Exists(ctx, "tiles/a")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = cs.ImportBuffer(ctx, "tiles/a")
	assert.Error(t, err)
	require.NoError(t, cs.Close())
}

func TestNewFromDestinationFilesystem(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "bucket")
	cs, err := NewFromDestination("file://" + filepath.ToSlash(dir))
	require.NoError(t, err)
	defer cs.Close()

	require.NoError(t, cs.ExportBuffer(ctx, "mesh", []byte("payload"), []byte("{}")))
	_, err = os.Stat(filepath.Join(dir, "mesh"+BufferObjectExt))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "mesh"+LayoutObjectExt))
	assert.NoError(t, err)

	names, err := cs.Exported(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mesh"}, names)
}
