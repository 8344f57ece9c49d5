package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/TFMV/meshbuf/internal/bridge"
	"github.com/TFMV/meshbuf/internal/diff"
	"github.com/TFMV/meshbuf/internal/layout"
	"github.com/TFMV/meshbuf/internal/storage"
	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff OLD NEW",
	Short: "Compare the buffer layouts of two meshes",
	Long: `Compare the buffer layouts of two meshes. OLD and NEW are container
files, or names in the buffer store when --store is given.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		storeDir, _ := cmd.Flags().GetString("store")

		var load diff.LoadFunc
		if storeDir != "" {
			store, err := storage.NewBufferStore(storeDir)
			if err != nil {
				return err
			}
			defer store.Close()
			load = func(_ context.Context, name string) (*layout.Layout, error) {
				return store.Layout(name)
			}
		} else {
			svc, closeSvc, err := newService()
			if err != nil {
				return err
			}
			defer closeSvc()
			load = containerLayout(svc)
		}

		diffs, err := diff.Compare(cmd.Context(), args[0], args[1], load)
		if err != nil {
			return err
		}
		if len(diffs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Layouts are identical")
			return nil
		}
		for _, d := range diffs {
			fmt.Fprintln(cmd.OutOrStdout(), d)
		}
		return nil
	},
}

func containerLayout(svc *bridge.Service) diff.LoadFunc {
	return func(_ context.Context, path string) (*layout.Layout, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		cm, ok := svc.OpenCachedMesh(data)
		if !ok {
			return nil, errors.New("not a decodable mesh")
		}
		defer cm.Close()
		l, ok := svc.Layout(cm.Handle())
		if !ok {
			return nil, errors.New("layout unavailable")
		}
		return l, nil
	}
}

func init() {
	diffCmd.Flags().String("store", "", "Compare stored buffers by name instead of container files")
	RootCmd.AddCommand(diffCmd)
}
