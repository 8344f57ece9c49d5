package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/TFMV/meshbuf/internal/codec"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the buffer layout of a mesh container",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, input, err := readInput(cmd)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		dec, err := codec.NewDecoder(codec.WithMaxPayload(cfg.Decode.MaxPayload))
		if err != nil {
			return err
		}
		defer dec.Close()

		hdr, err := dec.Inspect(data)
		if err != nil {
			return fmt.Errorf("failed to inspect %s: %w", input, err)
		}

		svc, closeSvc, err := newService()
		if err != nil {
			return err
		}
		defer closeSvc()

		cm, ok := svc.OpenCachedMesh(data)
		if !ok {
			return fmt.Errorf("%s is not a decodable mesh (kind %d)", input, hdr.Kind)
		}
		defer cm.Close()
		l, _ := svc.Layout(cm.Handle())

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(l)
		}

		fmt.Printf("Container: %s (version %d, payload %s)\n", input, hdr.Version, humanize.Bytes(uint64(hdr.RawLength)))
		fmt.Printf("Vertices:  %d\n", l.VertexCount)
		fmt.Printf("Indices:   %d x %d bytes (%s)\n", l.IndexCount, l.IndexWidth, humanize.Bytes(l.IndexLength))
		fmt.Printf("Buffer:    %s\n\n", humanize.Bytes(l.Size()))

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tTYPE\tDIM\tOFFSET\tLENGTH\t")
		for _, s := range l.Attributes {
			typ := s.TypeCode.String()
			if s.Degraded {
				typ = fmt.Sprintf("%s (from %s)", typ, s.DataType)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\t\n", s.UniqueID, s.Kind, typ, s.NumComponents, s.Offset, s.Length)
		}
		return w.Flush()
	},
}

func init() {
	inspectCmd.Flags().String("input", "", "Mesh container to inspect")
	inspectCmd.Flags().Bool("json", false, "Print the layout as JSON")
	RootCmd.AddCommand(inspectCmd)
}
