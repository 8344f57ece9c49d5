package cmd

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/TFMV/meshbuf/internal/metadata"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the layout index",
	Long: `Query the layout index built by scan. Filters combine; with no
filters every indexed mesh is listed in ascending buffer size order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("index") {
			cfg.Index.Path, _ = cmd.Flags().GetString("index")
		}
		q, err := queryFromFlags(cmd)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		if _, err := os.Stat(cfg.Index.Path); err != nil {
			return fmt.Errorf("index %s: %w", cfg.Index.Path, err)
		}
		index, err := metadata.Open(cfg.Index.Path)
		if err != nil {
			return err
		}
		defer index.Close()

		largest, _ := cmd.Flags().GetInt("largest")
		duplicates, _ := cmd.Flags().GetBool("duplicates")

		var records []metadata.AssetRecord
		switch {
		case duplicates:
			groups, err := index.Duplicates()
			if err != nil {
				return err
			}
			digests := slices.Sorted(maps.Keys(groups))
			for _, d := range digests {
				records = append(records, groups[d]...)
			}
		case largest > 0:
			records, err = index.Largest(largest)
		default:
			records, err = index.Find(q)
		}
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No meshes match the query")
			return nil
		}
		printRecords(cmd, records)
		return nil
	},
}

func queryFromFlags(cmd *cobra.Command) (metadata.Query, error) {
	var q metadata.Query
	minSize, _ := cmd.Flags().GetString("min-size")
	maxSize, _ := cmd.Flags().GetString("max-size")
	var err error
	if minSize != "" {
		if q.MinSize, err = humanize.ParseBytes(minSize); err != nil {
			return q, fmt.Errorf("invalid --min-size: %w", err)
		}
	}
	if maxSize != "" {
		if q.MaxSize, err = humanize.ParseBytes(maxSize); err != nil {
			return q, fmt.Errorf("invalid --max-size: %w", err)
		}
	}
	if q.MaxSize > 0 && q.MinSize > q.MaxSize {
		return q, fmt.Errorf("--min-size %d exceeds --max-size %d", q.MinSize, q.MaxSize)
	}
	if cmd.Flags().Changed("attr-id") {
		id, _ := cmd.Flags().GetInt32("attr-id")
		q.AttributeID = &id
	}
	q.Pattern, _ = cmd.Flags().GetString("pattern")
	q.Digest, _ = cmd.Flags().GetString("digest")
	q.DegradedOnly, _ = cmd.Flags().GetBool("degraded")
	return q, nil
}

func printRecords(cmd *cobra.Command, records []metadata.AssetRecord) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tBUFFER\tCONTAINER\tVERTICES\tINDICES\tATTRIBUTES\tNOTES")
	for _, r := range records {
		ids := make([]string, len(r.AttributeIDs))
		for i, id := range r.AttributeIDs {
			ids[i] = fmt.Sprint(id)
		}
		var notes []string
		if r.Degraded {
			notes = append(notes, "degraded")
		}
		if r.DuplicateOf != "" {
			notes = append(notes, "duplicate of "+r.DuplicateOf)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.Name,
			humanize.Bytes(r.BufferSize),
			humanize.Bytes(uint64(r.CompressedSize)),
			r.VertexCount,
			r.IndexCount,
			strings.Join(ids, ","),
			strings.Join(notes, "; "))
	}
	w.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d meshes\n", len(records))
}

func init() {
	queryCmd.Flags().String("index", "", "Layout index database (default from config)")
	queryCmd.Flags().String("min-size", "", "Minimum buffer size, e.g. 64KiB")
	queryCmd.Flags().String("max-size", "", "Maximum buffer size, e.g. 10MB")
	queryCmd.Flags().Int32("attr-id", 0, "Only meshes with this attribute unique id")
	queryCmd.Flags().String("pattern", "", "Glob pattern over mesh names")
	queryCmd.Flags().String("digest", "", "Only meshes whose container has this digest")
	queryCmd.Flags().Bool("degraded", false, "Only meshes with a degraded attribute")
	queryCmd.Flags().Int("largest", 0, "List the N meshes with the largest buffers, ignoring filters")
	queryCmd.Flags().Bool("duplicates", false, "List meshes whose containers share a digest, ignoring filters")
	queryCmd.Flags().Bool("json", false, "Print records as JSON")
	RootCmd.AddCommand(queryCmd)
}
