// Package cloudstorage exports decoded mesh buffers and their layout
// sidecars to object storage buckets.
package cloudstorage

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/client"
	"gopkg.in/yaml.v3"
)

// StorageType names a bucket provider in a destination URL.
type StorageType string

const (
	S3Storage   StorageType = "s3"
	GCSStorage  StorageType = "gcs"
	FileStorage StorageType = "file"

	// BufferObjectExt suffixes compressed buffer objects.
	BufferObjectExt = ".bin.zst"
	// LayoutObjectExt suffixes layout sidecar objects.
	LayoutObjectExt = ".layout.json"

	component = "meshbuf"
)

// ParseDestination splits a destination URL such as s3://bucket/prefix or
// file:///var/meshes/prefix. For file URLs the bucket is the directory.
func ParseDestination(destination string) (StorageType, string, string, error) {
	u, err := url.Parse(destination)
	if err != nil {
		return "", "", "", errors.Wrap(err, "parse destination URL")
	}
	storageType := StorageType(u.Scheme)
	switch storageType {
	case FileStorage:
		if u.Path == "" {
			return "", "", "", errors.New("invalid URL format, expected file:///directory")
		}
		return storageType, u.Path, "", nil
	case S3Storage, GCSStorage:
	case "":
		return "", "", "", errors.New("invalid URL format, expected scheme://bucket/prefix")
	default:
		return "", "", "", errors.Errorf("unsupported storage type: %s", storageType)
	}
	if u.Host == "" {
		return "", "", "", errors.New("invalid URL format, expected scheme://bucket/prefix")
	}
	return storageType, u.Host, strings.Trim(u.Path, "/"), nil
}

// BucketConfig renders the objstore client configuration for a parsed
// destination, taking credentials from the environment.
func BucketConfig(storageType StorageType, bucket string) ([]byte, error) {
	var conf map[string]interface{}
	switch storageType {
	case S3Storage:
		s3 := map[string]interface{}{
			"bucket":     bucket,
			"endpoint":   os.Getenv("S3_ENDPOINT"),
			"access_key": os.Getenv("S3_ACCESS_KEY"),
			"secret_key": os.Getenv("S3_SECRET_KEY"),
			"region":     os.Getenv("S3_REGION"),
			"insecure":   os.Getenv("S3_INSECURE") == "true",
		}
		if os.Getenv("S3_FORCE_PATH_STYLE") == "true" {
			s3["bucket_lookup_type"] = "path"
		}
		conf = map[string]interface{}{"type": "S3", "config": s3}
	case GCSStorage:
		conf = map[string]interface{}{
			"type": "GCS",
			"config": map[string]interface{}{
				"bucket":          bucket,
				"service_account": os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
			},
		}
	case FileStorage:
		conf = map[string]interface{}{
			"type":   "FILESYSTEM",
			"config": map[string]interface{}{"directory": bucket},
		}
	default:
		return nil, errors.Errorf("unsupported storage type: %s", storageType)
	}
	out, err := yaml.Marshal(conf)
	return out, errors.Wrap(err, "marshal bucket config to YAML")
}

// Option configures a CloudStorage.
type Option func(*CloudStorage)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(c *CloudStorage) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCompression sets the zstd level of uploaded buffers.
func WithCompression(level zstd.EncoderLevel) Option {
	return func(c *CloudStorage) { c.level = level }
}

// CloudStorage uploads buffers under a key prefix of one bucket.
type CloudStorage struct {
	bucket objstore.Bucket
	prefix string
	logger log.Logger
	level  zstd.EncoderLevel
}

// New wraps an existing bucket.
func New(bucket objstore.Bucket, prefix string, opts ...Option) *CloudStorage {
	c := &CloudStorage{
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: log.NewNopLogger(),
		level:  zstd.SpeedDefault,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds the bucket from objstore client YAML.
func NewFromConfig(conf []byte, prefix string, opts ...Option) (*CloudStorage, error) {
	c := New(nil, prefix, opts...)
	bucket, err := client.NewBucket(c.logger, conf, component, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create bucket")
	}
	c.bucket = bucket
	return c, nil
}

// NewFromConfigFile reads objstore client YAML from path.
func NewFromConfigFile(path, prefix string, opts ...Option) (*CloudStorage, error) {
	conf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read bucket config")
	}
	return NewFromConfig(conf, prefix, opts...)
}

// NewFromDestination builds the bucket from a destination URL.
func NewFromDestination(destination string, opts ...Option) (*CloudStorage, error) {
	storageType, bucket, prefix, err := ParseDestination(destination)
	if err != nil {
		return nil, err
	}
	if storageType == FileStorage {
		if err := os.MkdirAll(bucket, 0o755); err != nil {
			return nil, errors.Wrap(err, "create bucket directory")
		}
	}
	conf, err := BucketConfig(storageType, bucket)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(conf, prefix, opts...)
}

// ObjectName joins the prefix and name into a bucket key.
func ObjectName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return strings.TrimSuffix(prefix, "/") + "/" + name
}

func (c *CloudStorage) object(name, ext string) string {
	return ObjectName(c.prefix, name+ext)
}

// ExportBuffer uploads data compressed with zstd and, when layoutJSON is
// non-empty, its layout sidecar. The sidecar goes last so its presence marks
// a complete export.
func (c *CloudStorage) ExportBuffer(ctx context.Context, name string, data, layoutJSON []byte) error {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(c.level))
	if err != nil {
		return errors.Wrap(err, "create zstd encoder")
	}
	compressed := enc.EncodeAll(data, nil)
	enc.Close()

	start := time.Now()
	bufObj := c.object(name, BufferObjectExt)
	if err := c.bucket.Upload(ctx, bufObj, bytes.NewReader(compressed)); err != nil {
		return errors.Wrapf(err, "upload %s", bufObj)
	}
	if len(layoutJSON) > 0 {
		layoutObj := c.object(name, LayoutObjectExt)
		if err := c.bucket.Upload(ctx, layoutObj, bytes.NewReader(layoutJSON)); err != nil {
			return errors.Wrapf(err, "upload %s", layoutObj)
		}
	}
	level.Info(c.logger).Log(
		"msg", "export complete",
		"object", bufObj,
		"size", len(data),
		"compressed", len(compressed),
		"duration", time.Since(start),
	)
	return nil
}

// ImportBuffer downloads and decompresses the buffer exported as name,
// together with its layout sidecar if present.
func (c *CloudStorage) ImportBuffer(ctx context.Context, name string) (data, layoutJSON []byte, err error) {
	bufObj := c.object(name, BufferObjectExt)
	var compressed bytes.Buffer
	if err := c.Download(ctx, bufObj, &compressed); err != nil {
		return nil, nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create zstd decoder")
	}
	defer dec.Close()
	data, err = dec.DecodeAll(compressed.Bytes(), nil)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "decompress %s", bufObj)
	}

	layoutObj := c.object(name, LayoutObjectExt)
	ok, err := c.bucket.Exists(ctx, layoutObj)
	if err != nil {
		return nil, nil, errors.Wrap(err, "check layout existence")
	}
	if ok {
		var buf bytes.Buffer
		if err := c.Download(ctx, layoutObj, &buf); err != nil {
			return nil, nil, err
		}
		layoutJSON = buf.Bytes()
	}
	return data, layoutJSON, nil
}

// Download copies objectName into w.
func (c *CloudStorage) Download(ctx context.Context, objectName string, w io.Writer) error {
	rc, err := c.bucket.Get(ctx, objectName)
	if err != nil {
		if c.bucket.IsObjNotFoundErr(err) {
			return errors.Errorf("object %s does not exist", objectName)
		}
		return errors.Wrap(err, "get object")
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return errors.Wrap(err, "copy data")
	}
	return nil
}

// Exported lists the names of exported buffers under the prefix.
func (c *CloudStorage) Exported(ctx context.Context) ([]string, error) {
	objects, err := c.List(ctx, c.prefix)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, obj := range objects {
		if !strings.HasSuffix(obj, BufferObjectExt) {
			continue
		}
		name := strings.TrimSuffix(obj, BufferObjectExt)
		if c.prefix != "" {
			name = strings.TrimPrefix(name, c.prefix+"/")
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// List returns every object below dir, descending into sub-directories.
func (c *CloudStorage) List(ctx context.Context, dir string) ([]string, error) {
	var objects []string
	var walk func(dir string) error
	walk = func(dir string) error {
		return c.bucket.Iter(ctx, dir, func(name string) error {
			if strings.HasSuffix(name, objstore.DirDelim) {
				return walk(name)
			}
			objects = append(objects, name)
			return nil
		})
	}
	if dir != "" && !strings.HasSuffix(dir, objstore.DirDelim) {
		dir += objstore.DirDelim
	}
	if err := walk(dir); err != nil {
		return nil, errors.Wrap(err, "list objects")
	}
	return objects, nil
}

// Delete removes the buffer and layout exported as name.
func (c *CloudStorage) Delete(ctx context.Context, name string) error {
	for _, obj := range []string{c.object(name, BufferObjectExt), c.object(name, LayoutObjectExt)} {
		if err := c.bucket.Delete(ctx, obj); err != nil && !c.bucket.IsObjNotFoundErr(err) {
			return errors.Wrapf(err, "delete %s", obj)
		}
	}
	return nil
}

// Exists reports whether a buffer was exported as name.
func (c *CloudStorage) Exists(ctx context.Context, name string) (bool, error) {
	return c.bucket.Exists(ctx, c.object(name, BufferObjectExt))
}

// Close closes the bucket.
func (c *CloudStorage) Close() error {
	return c.bucket.Close()
}

// Bucket returns the underlying bucket.
func (c *CloudStorage) Bucket() objstore.Bucket {
	return c.bucket
}

// Prefix returns the key prefix.
func (c *CloudStorage) Prefix() string {
	return c.prefix
}

