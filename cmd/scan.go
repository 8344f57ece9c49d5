package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/TFMV/meshbuf/internal/bridge"
	"github.com/TFMV/meshbuf/internal/hash"
	"github.com/TFMV/meshbuf/internal/metadata"
	"github.com/TFMV/meshbuf/internal/storage"
	"github.com/TFMV/meshbuf/internal/walker"
	"github.com/dustin/go-humanize"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type scanStats struct {
	assets, failed, duplicates atomic.Int64
	bytesIn, bytesOut          atomic.Uint64
}

type scanner struct {
	svc        *bridge.Service
	idx        *metadata.Index
	mu         sync.Mutex
	store      *storage.BufferStore
	seen       *storage.BloomFilter
	pool       *hash.BufferPool
	skipErrors bool
	logger     kitlog.Logger
	stats      scanStats
	onAsset    func()
}

// record indexes rec, marking it a duplicate of an earlier asset with
// digest d. The duplicate check and the insert share s.mu.
func (s *scanner) record(rec metadata.AssetRecord, d hash.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen.TestAndAdd(d[:]) {
		prior, err := s.idx.FindByDigest(d)
		if err != nil {
			return err
		}
		for _, p := range prior {
			if p.Name != rec.Name {
				rec.DuplicateOf = p.Name
				s.stats.duplicates.Add(1)
				break
			}
		}
	}
	return s.idx.Put(rec)
}

// process decodes one asset, stores its buffer and indexes its layout.
func (s *scanner) process(a walker.Asset) error {
	if a.Err != nil {
		return s.fail(a, a.Err)
	}
	data, err := os.ReadFile(a.AbsPath)
	if err != nil {
		return s.fail(a, err)
	}
	if a.Digest.IsZero() {
		a.Digest = hash.Bytes(data)
	}

	cm, ok := s.svc.OpenCachedMesh(data)
	if !ok {
		return s.fail(a, errors.New("not a decodable mesh"))
	}
	defer cm.Close()
	l, ok := s.svc.Layout(cm.Handle())
	if !ok {
		return s.fail(a, errors.New("layout unavailable"))
	}

	buf := s.pool.Get(int(l.Size()))
	defer s.pool.Put(buf)
	if n, ok := cm.DecodeTo(buf); !ok && len(buf) > 0 {
		return s.fail(a, errors.New("buffer write failed"))
	} else if n != len(buf) {
		return s.fail(a, fmt.Errorf("wrote %d of %d bytes", n, len(buf)))
	}

	name := a.Name()
	if err := s.store.Put(name, buf, l); err != nil {
		return err
	}
	if err := s.record(metadata.NewRecord(name, a.Path, a.Digest, a.Size, l), a.Digest); err != nil {
		return err
	}

	s.stats.assets.Add(1)
	s.stats.bytesIn.Add(uint64(a.Size))
	s.stats.bytesOut.Add(uint64(len(buf)))
	level.Debug(s.logger).Log("msg", "scanned asset", "name", name, "vertices", l.VertexCount, "buffer", len(buf))
	if s.onAsset != nil {
		s.onAsset()
	}
	return nil
}

func (s *scanner) fail(a walker.Asset, err error) error {
	s.stats.failed.Add(1)
	if s.skipErrors {
		level.Warn(s.logger).Log("msg", "skipping asset", "path", a.Path, "err", err)
		if s.onAsset != nil {
			s.onAsset()
		}
		return nil
	}
	return fmt.Errorf("%s: %w", a.Path, err)
}

func (s *scanner) run(ctx context.Context, dir string, opts walker.Options) error {
	opts.SkipErrors = s.skipErrors
	return walker.WalkStream(ctx, dir, opts, s.process)
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Decode every container under a directory into the store and index",
	Long: `Walk a directory for mesh containers, decode each one, keep the
compressed buffer in the store and record its layout in the index.
Containers whose content was already seen are flagged as duplicates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			return fmt.Errorf("--dir must be specified")
		}
		if cmd.Flags().Changed("index") {
			cfg.Index.Path, _ = cmd.Flags().GetString("index")
		}
		if cmd.Flags().Changed("store") {
			cfg.Store.Dir, _ = cmd.Flags().GetString("store")
		}
		if cmd.Flags().Changed("workers") {
			cfg.Scan.Workers, _ = cmd.Flags().GetInt("workers")
		}
		if cmd.Flags().Changed("skip-errors") {
			cfg.Scan.SkipErrors, _ = cmd.Flags().GetBool("skip-errors")
		}

		svc, closeSvc, err := newService()
		if err != nil {
			return err
		}
		defer closeSvc()

		lvl, err := compressionLevel()
		if err != nil {
			return err
		}
		store, err := storage.NewBufferStore(cfg.Store.Dir,
			storage.WithCacheSize(cfg.Store.CacheSize),
			storage.WithCompression(lvl))
		if err != nil {
			return err
		}
		defer store.Close()

		index, err := openIndex(cfg.Index.Path)
		if err != nil {
			return err
		}
		defer index.Close()

		opts := walker.DefaultOptions()
		opts.Extensions = cfg.Scan.Extensions
		opts.Workers = cfg.Scan.Workers

		bar := progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Scanning"),
			progressbar.OptionSetItsString("meshes"),
			progressbar.OptionShowIts(),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Println()
			}),
		)

		s := &scanner{
			svc:        svc,
			idx:        index,
			store:      store,
			seen:       storage.NewBloomFilterFor(4096),
			pool:       hash.DefaultBufferPool,
			skipErrors: cfg.Scan.SkipErrors,
			logger:     logger,
			onAsset:    func() { _ = bar.Add(1) },
		}
		if err := s.run(ctx, dir, opts); err != nil {
			return err
		}
		_ = bar.Finish()
		level.Debug(logger).Log("msg", "scan buffers", "pool", s.pool.Metrics())

		fmt.Printf("Scanned %d meshes (%d failed, %d duplicates)\n",
			s.stats.assets.Load(), s.stats.failed.Load(), s.stats.duplicates.Load())
		fmt.Printf("Read %s of containers, stored %s of buffers in %s\n",
			humanize.Bytes(s.stats.bytesIn.Load()), humanize.Bytes(s.stats.bytesOut.Load()), cfg.Store.Dir)
		return nil
	},
}

func openIndex(path string) (*metadata.Index, error) {
	if path != metadata.InMemory {
		if err := ensureParent(path); err != nil {
			return nil, err
		}
	}
	return metadata.Open(path)
}

func init() {
	scanCmd.Flags().String("dir", "", "Directory to scan")
	scanCmd.Flags().String("index", "", "Layout index database (default from config)")
	scanCmd.Flags().String("store", "", "Buffer store directory (default from config)")
	scanCmd.Flags().Int("workers", 0, "Number of decode workers (default from config)")
	scanCmd.Flags().Bool("skip-errors", false, "Skip containers that fail to decode")
	RootCmd.AddCommand(scanCmd)
}
