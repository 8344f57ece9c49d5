package cmd

import (
	"errors"
	"fmt"

	"github.com/TFMV/meshbuf/internal/cloudstorage"
	"github.com/TFMV/meshbuf/internal/storage"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export [destination]",
	Short: "Upload stored buffers and their layouts to a bucket",
	Long: `Upload decoded buffers from the store to object storage. The
destination is either a URL (s3://bucket/prefix, gs://bucket/prefix,
file:///path) or, without an argument, the objstore bucket YAML named by
--bucket-config.

Examples:
  meshbuf export s3://assets/meshes --all
  meshbuf export --bucket-config bucket.yaml --name terrain/tile_0`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if cmd.Flags().Changed("store") {
			cfg.Store.Dir, _ = cmd.Flags().GetString("store")
		}
		if cmd.Flags().Changed("bucket-config") {
			cfg.Export.BucketConfig, _ = cmd.Flags().GetString("bucket-config")
		}
		if cmd.Flags().Changed("prefix") {
			cfg.Export.Prefix, _ = cmd.Flags().GetString("prefix")
		}
		name, _ := cmd.Flags().GetString("name")
		all, _ := cmd.Flags().GetBool("all")
		if (name == "") == !all {
			return fmt.Errorf("exactly one of --name or --all must be specified")
		}

		lvl, err := compressionLevel()
		if err != nil {
			return err
		}
		opts := []cloudstorage.Option{
			cloudstorage.WithLogger(logger),
			cloudstorage.WithCompression(lvl),
		}

		var cs *cloudstorage.CloudStorage
		switch {
		case len(args) == 1:
			cs, err = cloudstorage.NewFromDestination(args[0], opts...)
		case cfg.Export.BucketConfig != "":
			cs, err = cloudstorage.NewFromConfigFile(cfg.Export.BucketConfig, cfg.Export.Prefix, opts...)
		default:
			return fmt.Errorf("a destination or --bucket-config must be specified")
		}
		if err != nil {
			return err
		}
		defer cs.Close()

		store, err := storage.NewBufferStore(cfg.Store.Dir, storage.WithCacheSize(cfg.Store.CacheSize))
		if err != nil {
			return err
		}
		defer store.Close()

		names := []string{name}
		if all {
			if names, err = store.List(); err != nil {
				return err
			}
		}

		var total uint64
		for _, n := range names {
			data, err := store.Get(n)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", n, err)
			}
			layoutJSON, err := store.LayoutJSON(n)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("failed to read layout of %s: %w", n, err)
			}
			if err := cs.ExportBuffer(ctx, n, data, layoutJSON); err != nil {
				return err
			}
			total += uint64(len(data))
			level.Info(logger).Log("msg", "exported buffer", "name", n, "size", len(data))
		}

		fmt.Printf("Exported %d buffers (%s) to %s\n", len(names), humanize.Bytes(total), exportTarget(args))
		return nil
	},
}

func exportTarget(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return cfg.Export.BucketConfig
}

func init() {
	exportCmd.Flags().String("store", "", "Buffer store directory (default from config)")
	exportCmd.Flags().String("bucket-config", "", "objstore bucket configuration file")
	exportCmd.Flags().String("prefix", "", "Object name prefix when using --bucket-config")
	exportCmd.Flags().String("name", "", "Name of the buffer to export")
	exportCmd.Flags().Bool("all", false, "Export every stored buffer")
	RootCmd.AddCommand(exportCmd)
}
