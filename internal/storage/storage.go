// Package storage keeps decoded mesh buffers on disk, zstd-compressed, next
// to a JSON sidecar holding their layout.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/TFMV/meshbuf/internal/layout"
	"github.com/karrick/godirwalk"
	"github.com/klauspost/compress/zstd"
)

const (
	// DefaultCacheSize is the number of decompressed buffers kept in memory.
	DefaultCacheSize = 16
	// BufferFileExt is the extension of compressed buffer files.
	BufferFileExt = ".buf.zst"
	// LayoutFileExt is the extension of layout sidecars.
	LayoutFileExt = ".layout.json"
)

var (
	// ErrNotFound is returned for names with no stored buffer.
	ErrNotFound = errors.New("buffer not found")
	// ErrInvalidName is returned for names that escape the store directory.
	ErrInvalidName = errors.New("invalid buffer name")
)

// Option configures a BufferStore.
type Option func(*BufferStore)

// WithCacheSize bounds the in-memory LRU. Zero disables it.
func WithCacheSize(n int) Option {
	return func(s *BufferStore) {
		if n >= 0 {
			s.cacheSize = n
		}
	}
}

// WithCompression sets the zstd level used for new buffers.
func WithCompression(level zstd.EncoderLevel) Option {
	return func(s *BufferStore) {
		s.level = level
	}
}

// BufferStore persists decoded buffers by name. Names are slash separated
// paths relative to the store directory. It is safe for concurrent use.
type BufferStore struct {
	baseDir string
	level   zstd.EncoderLevel
	encoder *zstd.Encoder
	decoder *zstd.Decoder

	cacheMutex sync.Mutex
	cache      map[string][]byte
	cacheKeys  []string
	cacheSize  int
}

// NewBufferStore opens or creates a store rooted at baseDir.
func NewBufferStore(baseDir string, opts ...Option) (*BufferStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	s := &BufferStore{
		baseDir:   baseDir,
		level:     zstd.SpeedDefault,
		cache:     make(map[string][]byte),
		cacheSize: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	s.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(s.level))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	s.decoder, err = zstd.NewReader(nil)
	if err != nil {
		s.encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return s, nil
}

// Dir returns the store directory.
func (s *BufferStore) Dir() string { return s.baseDir }

// Close releases the codecs.
func (s *BufferStore) Close() error {
	s.decoder.Close()
	return s.encoder.Close()
}

func (s *BufferStore) path(name, ext string) (string, error) {
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(name)))
	if name == "" || clean == "." || filepath.IsAbs(name) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(clean)+ext), nil
}

// Put stores data and its layout under name, replacing any previous
// buffer. l may be nil when the layout is not known. data is not retained.
func (s *BufferStore) Put(name string, data []byte, l *layout.Layout) error {
	if l != nil && l.Size() != uint64(len(data)) {
		return fmt.Errorf("%w: layout describes %d bytes, buffer has %d", layout.ErrLayoutMismatch, l.Size(), len(data))
	}
	bufPath, err := s.path(name, BufferFileExt)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(bufPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", name, err)
	}

	compressed := s.encoder.EncodeAll(data, nil)
	if err := writeFileAtomic(bufPath, compressed); err != nil {
		return fmt.Errorf("failed to write buffer %s: %w", name, err)
	}

	layoutPath, _ := s.path(name, LayoutFileExt)
	if l != nil {
		meta, err := json.MarshalIndent(l, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode layout for %s: %w", name, err)
		}
		if err := writeFileAtomic(layoutPath, meta); err != nil {
			return fmt.Errorf("failed to write layout %s: %w", name, err)
		}
	} else if err := os.Remove(layoutPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove stale layout %s: %w", name, err)
	}

	s.cacheBuffer(name, bytes.Clone(data))
	return nil
}

// Get returns the decompressed buffer stored under name. Callers must not
// modify the returned slice.
func (s *BufferStore) Get(name string) ([]byte, error) {
	s.cacheMutex.Lock()
	if data, ok := s.cache[name]; ok {
		s.touch(name)
		s.cacheMutex.Unlock()
		return data, nil
	}
	s.cacheMutex.Unlock()

	bufPath, err := s.path(name, BufferFileExt)
	if err != nil {
		return nil, err
	}
	compressed, err := os.ReadFile(bufPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	data, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress buffer %s: %w", name, err)
	}
	s.cacheBuffer(name, data)
	return data, nil
}

// Layout returns the layout sidecar of name.
func (s *BufferStore) Layout(name string) (*layout.Layout, error) {
	p, err := s.path(name, LayoutFileExt)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: layout of %s", ErrNotFound, name)
		}
		return nil, err
	}
	var l layout.Layout
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("failed to decode layout of %s: %w", name, err)
	}
	return &l, nil
}

// LayoutJSON returns the raw sidecar bytes of name.
func (s *BufferStore) LayoutJSON(name string) ([]byte, error) {
	p, err := s.path(name, LayoutFileExt)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: layout of %s", ErrNotFound, name)
	}
	return raw, err
}

// List returns every stored name in lexical order.
func (s *BufferStore) List() ([]string, error) {
	var names []string
	err := godirwalk.Walk(s.baseDir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() || !strings.HasSuffix(path, BufferFileExt) {
				return nil
			}
			rel, err := filepath.Rel(s.baseDir, path)
			if err != nil {
				return err
			}
			names = append(names, strings.TrimSuffix(filepath.ToSlash(rel), BufferFileExt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list store: %w", err)
	}
	slices.Sort(names)
	return names, nil
}

// Delete removes name and its layout.
func (s *BufferStore) Delete(name string) error {
	bufPath, err := s.path(name, BufferFileExt)
	if err != nil {
		return err
	}
	layoutPath, _ := s.path(name, LayoutFileExt)

	s.cacheMutex.Lock()
	s.evict(name)
	s.cacheMutex.Unlock()

	if err := os.Remove(bufPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return err
	}
	if err := os.Remove(layoutPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// cacheBuffer records name as most recently used.
func (s *BufferStore) cacheBuffer(name string, data []byte) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()
	if s.cacheSize == 0 {
		return
	}
	if _, ok := s.cache[name]; ok {
		s.cache[name] = data
		s.touch(name)
		return
	}
	if len(s.cacheKeys) >= s.cacheSize {
		s.evict(s.cacheKeys[0])
	}
	s.cacheKeys = append(s.cacheKeys, name)
	s.cache[name] = data
}

// touch moves name to the back of the LRU order. cacheMutex must be held.
func (s *BufferStore) touch(name string) {
	if i := slices.Index(s.cacheKeys, name); i >= 0 {
		s.cacheKeys = append(slices.Delete(s.cacheKeys, i, i+1), name)
	}
}

func (s *BufferStore) evict(name string) {
	delete(s.cache, name)
	if i := slices.Index(s.cacheKeys, name); i >= 0 {
		s.cacheKeys = slices.Delete(s.cacheKeys, i, i+1)
	}
}

func (s *BufferStore) cached(name string) bool {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()
	_, ok := s.cache[name]
	return ok
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
