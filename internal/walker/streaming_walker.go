package walker

import (
	"context"
	"os"
	"path/filepath"

	"github.com/TFMV/meshbuf/internal/hash"
	"golang.org/x/sync/errgroup"
)

// AssetFunc handles one asset. It is called concurrently from up to
// Options.Workers goroutines. A non-nil error stops the walk.
type AssetFunc func(Asset) error

// WalkStream walks root and hands each matching asset to fn as soon as its
// digest is ready.
func WalkStream(ctx context.Context, root string, opts Options, fn AssetFunc) error {
	absRoot, err := validateRoot(root)
	if err != nil {
		return err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	eg, ctx := errgroup.WithContext(ctx)
	paths := make(chan Asset, workers*2)

	eg.Go(func() error {
		defer close(paths)
		return walkFiles(ctx, absRoot, opts, func(path string, info os.FileInfo) error {
			rel, err := filepath.Rel(absRoot, path)
			if err != nil {
				return err
			}
			a := Asset{
				Path:    filepath.ToSlash(rel),
				AbsPath: path,
				Size:    info.Size(),
				ModTime: info.ModTime(),
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case paths <- a:
				return nil
			}
		})
	})

	for i := 0; i < workers; i++ {
		eg.Go(func() error {
			for a := range paths {
				if opts.ComputeDigests {
					d, _, err := hash.File(a.AbsPath)
					if err != nil {
						if !opts.SkipErrors {
							return err
						}
						a.Err = err
					}
					a.Digest = d
				}
				if err := fn(a); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return eg.Wait()
}

// Stream is WalkStream delivering assets over a channel. The error channel
// receives at most one value and both channels are closed when the walk
// ends.
func Stream(ctx context.Context, root string, opts Options) (<-chan Asset, <-chan error) {
	out := make(chan Asset, max(opts.Workers, 1)*2)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		err := WalkStream(ctx, root, opts, func(a Asset) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- a:
				return nil
			}
		})
		if err != nil {
			errc <- err
		}
	}()
	return out, errc
}
