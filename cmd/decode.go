package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/TFMV/meshbuf/internal/gltfexport"
	"github.com/TFMV/meshbuf/internal/hash"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
)

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode a mesh container into a raw buffer",
	Long: `Decode a mesh container through the handle cache and write the flat
buffer. The layout can be written next to it as JSON, and the same buffer
can be wrapped into a binary glTF file.

Examples:
  meshbuf decode --input tile.mgeo --output tile.bin --layout tile.json
  meshbuf decode --input tile.mgeo --gltf tile.glb`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, input, err := readInput(cmd)
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		layoutPath, _ := cmd.Flags().GetString("layout")
		gltfPath, _ := cmd.Flags().GetString("gltf")
		if output == "" && gltfPath == "" {
			return fmt.Errorf("at least one of --output or --gltf must be specified")
		}

		svc, closeSvc, err := newService()
		if err != nil {
			return err
		}
		defer closeSvc()

		cm, ok := svc.OpenCachedMesh(data)
		if !ok {
			return fmt.Errorf("failed to decode %s", input)
		}
		defer cm.Close()

		l, ok := svc.Layout(cm.Handle())
		if !ok {
			return fmt.Errorf("no layout for %s", input)
		}
		buf := hash.GetBuffer(int(l.Size()))
		defer hash.PutBuffer(buf)
		n, written := cm.DecodeTo(buf)
		if !written && len(buf) > 0 {
			return fmt.Errorf("failed to write buffer for %s", input)
		}
		buf = buf[:n]

		if output != "" {
			if err := os.WriteFile(output, buf, 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s (%s, %d vertices, %d indices)\n",
				output, humanize.Bytes(uint64(len(buf))), l.VertexCount, l.IndexCount)
		}
		if layoutPath != "" {
			meta, err := json.MarshalIndent(l, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(layoutPath, meta, 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote layout to %s\n", layoutPath)
		}
		if gltfPath != "" {
			f, err := os.Create(gltfPath)
			if err != nil {
				return err
			}
			name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
			skipped, err := gltfexport.WriteBinary(f, name, buf, l)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			for _, s := range skipped {
				level.Warn(logger).Log("msg", "attribute left out of glTF", "unique_id", s.UniqueID, "reason", s.Reason)
			}
			fmt.Printf("Wrote glTF to %s\n", gltfPath)
		}
		return nil
	},
}

func init() {
	decodeCmd.Flags().String("input", "", "Mesh container to decode")
	decodeCmd.Flags().String("output", "", "Raw buffer output file")
	decodeCmd.Flags().String("layout", "", "Optional JSON layout output file")
	decodeCmd.Flags().String("gltf", "", "Optional binary glTF output file")
	RootCmd.AddCommand(decodeCmd)
}
