package cmd

import (
	"fmt"
	"os"

	"github.com/TFMV/meshbuf/internal/codec"
	"github.com/TFMV/meshbuf/internal/geometry"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Write a sample grid container",
	Long: `Write an N by N triangulated grid with positions, normals, texture
coordinates and colors as a compressed container. With --point-cloud only
the grid points are written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			return fmt.Errorf("--output must be specified")
		}
		n, _ := cmd.Flags().GetInt("grid")
		pointCloud, _ := cmd.Flags().GetBool("point-cloud")

		m, err := geometry.Grid(n)
		if err != nil {
			return err
		}
		lvl, err := compressionLevel()
		if err != nil {
			return err
		}
		enc, err := codec.NewEncoder(lvl)
		if err != nil {
			return err
		}
		defer enc.Close()

		var data []byte
		if pointCloud {
			data, err = enc.EncodePointCloud(m)
		} else {
			data, err = enc.EncodeMesh(m)
		}
		if err != nil {
			return err
		}

		if err := ensureParent(output); err != nil {
			return err
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}
		fmt.Printf("Wrote %s (%s, %d points, %d faces)\n",
			output, humanize.Bytes(uint64(len(data))), m.NumPoints(), m.NumFaces())
		return nil
	},
}

func init() {
	sampleCmd.Flags().String("output", "", "Output container file")
	sampleCmd.Flags().Int("grid", 8, "Grid resolution in cells per side")
	sampleCmd.Flags().Bool("point-cloud", false, "Write a point cloud instead of a mesh")
	RootCmd.AddCommand(sampleCmd)
}
