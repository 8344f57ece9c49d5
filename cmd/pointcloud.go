package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pointcloudCmd = &cobra.Command{
	Use:   "pointcloud",
	Short: "Extract point positions as packed float32 xyz",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, input, err := readInput(cmd)
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			return fmt.Errorf("--output must be specified")
		}

		svc, closeSvc, err := newService()
		if err != nil {
			return err
		}
		defer closeSvc()

		xyz := svc.DecodePointCloud(data)
		if len(xyz) == 0 {
			return fmt.Errorf("no positions decoded from %s", input)
		}
		if err := os.WriteFile(output, xyz, 0o644); err != nil {
			return err
		}
		fmt.Printf("Wrote %d points to %s\n", len(xyz)/12, output)
		return nil
	},
}

func init() {
	pointcloudCmd.Flags().String("input", "", "Point cloud or mesh container")
	pointcloudCmd.Flags().String("output", "", "Output file of native-endian float32 triples")
	RootCmd.AddCommand(pointcloudCmd)
}
