package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/TFMV/meshbuf/internal/bridge"
	"github.com/TFMV/meshbuf/internal/codec"
	"github.com/TFMV/meshbuf/internal/config"
	"github.com/TFMV/meshbuf/internal/logging"
	"github.com/TFMV/meshbuf/internal/meshcache"
	kitlog "github.com/go-kit/log"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
)

var (
	cfg    = config.Default()
	logger = kitlog.NewNopLogger()
)

// RootCmd is the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:   "meshbuf",
	Short: "Decode compressed meshes into GPU-ready buffers",
	Long: `meshbuf decodes compressed geometry containers into flat buffers:
an index block followed by every vertex attribute in unique id order.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.NewLoader().WithConfigPath(path).Load()
		if err != nil {
			return err
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			loaded.Log.Level = lvl
		}
		l, err := logging.New(os.Stderr, loaded.Log.Level)
		if err != nil {
			return err
		}
		cfg, logger = loaded, l
		return nil
	},
}

// Execute executes the root command.
func Execute() error {
	return RootCmd.Execute()
}

// ExecuteWithContext executes the root command with the given context.
func ExecuteWithContext(ctx context.Context) error {
	RootCmd.SetContext(ctx)
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().String("config", "meshbuf.yaml", "Configuration file (ignored if missing)")
	RootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error or none")
}

// newService builds a bridge over a fresh decoder and cache. The returned
// func releases both.
func newService() (*bridge.Service, func(), error) {
	dec, err := codec.NewDecoder(codec.WithMaxPayload(cfg.Decode.MaxPayload))
	if err != nil {
		return nil, nil, err
	}
	cache := meshcache.New(meshcache.WithLogger(logger))
	svc := bridge.New(dec, cache, bridge.WithLogger(logger))
	return svc, func() {
		cache.Close()
		dec.Close()
	}, nil
}

func compressionLevel() (zstd.EncoderLevel, error) {
	ok, lvl := zstd.EncoderLevelFromString(cfg.Decode.Compression)
	if !ok {
		return 0, fmt.Errorf("unknown compression level %q", cfg.Decode.Compression)
	}
	return lvl, nil
}

func readInput(cmd *cobra.Command) ([]byte, string, error) {
	input, _ := cmd.Flags().GetString("input")
	if input == "" {
		return nil, "", fmt.Errorf("--input must be specified")
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", input, err)
	}
	return data, input, nil
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}
