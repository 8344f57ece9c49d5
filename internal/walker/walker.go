// Package walker finds compressed geometry containers under a directory.
package walker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/TFMV/meshbuf/internal/hash"
	"github.com/karrick/godirwalk"
)

// Options controls a walk.
type Options struct {
	// Extensions selects files by suffix, case-insensitively. Empty means
	// every regular file.
	Extensions []string
	// ComputeDigests fills Asset.Digest.
	ComputeDigests bool
	// FollowSymlinks descends into linked directories.
	FollowSymlinks bool
	// MaxDepth limits directory depth below root (0 means no limit).
	MaxDepth int
	// SkipErrors records unreadable entries on the asset instead of
	// stopping the walk.
	SkipErrors bool
	// Workers is the number of goroutines digesting and handing out assets.
	Workers int
}

// DefaultOptions selects .mgeo files and digests them with four workers.
func DefaultOptions() Options {
	return Options{
		Extensions:     []string{".mgeo"},
		ComputeDigests: true,
		MaxDepth:       100,
		Workers:        4,
	}
}

// Asset is one container file found by a walk.
type Asset struct {
	// Path is relative to the walk root, slash separated.
	Path    string
	AbsPath string
	Size    int64
	ModTime time.Time
	Digest  hash.Digest
	// Err is set instead of failing the walk when SkipErrors is on.
	Err error
}

// Name is Path with its extension removed, used as the asset key.
func (a Asset) Name() string {
	return strings.TrimSuffix(a.Path, filepath.Ext(a.Path))
}

func (o Options) matches(name string) bool {
	if len(o.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	return slices.ContainsFunc(o.Extensions, func(e string) bool {
		return strings.ToLower(e) == ext
	})
}

// Walk returns every matching asset under root sorted by Path.
func Walk(ctx context.Context, root string, opts Options) ([]Asset, error) {
	var (
		mu     sync.Mutex
		assets []Asset
	)
	err := WalkStream(ctx, root, opts, func(a Asset) error {
		mu.Lock()
		assets = append(assets, a)
		mu.Unlock()
		return nil
	})
	slices.SortFunc(assets, func(a, b Asset) int { return strings.Compare(a.Path, b.Path) })
	return assets, err
}

func validateRoot(root string) (string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", root)
	}
	return filepath.Abs(root)
}

// walkFiles calls emit for each matching regular file path under absRoot.
func walkFiles(ctx context.Context, absRoot string, opts Options, emit func(path string, info os.FileInfo) error) error {
	return godirwalk.Walk(absRoot, &godirwalk.Options{
		FollowSymbolicLinks: opts.FollowSymlinks,
		Unsorted:            true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if path == absRoot {
				return nil
			}
			rel, err := filepath.Rel(absRoot, path)
			if err != nil {
				return err
			}
			isDir, err := de.IsDirOrSymlinkToDir()
			if err != nil {
				return err
			}
			if isDir {
				if opts.MaxDepth > 0 && strings.Count(rel, string(filepath.Separator))+1 >= opts.MaxDepth {
					return godirwalk.SkipThis
				}
				return nil
			}
			if !opts.matches(de.Name()) {
				return nil
			}
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			return emit(path, info)
		},
		ErrorCallback: func(_ string, err error) godirwalk.ErrorAction {
			if opts.SkipErrors && ctx.Err() == nil {
				return godirwalk.SkipNode
			}
			return godirwalk.Halt
		},
	})
}
