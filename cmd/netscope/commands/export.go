package commands

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var exportFormat string

// ExportCmd dumps the stored current configuration tree of a device.
var ExportCmd = &cobra.Command{
	Use:   "export <device>",
	Short: "Export a device's current configuration tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close(ctx)

		root, err := e.Store.CurrentTree(ctx, args[0])
		if err != nil {
			return err
		}

		switch exportFormat {
		case "yaml":
			enc := yaml.NewEncoder(os.Stdout)
			defer enc.Close()
			return enc.Encode(root)
		default:
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(root)
		}
	},
}

func init() {
	ExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "output format: json or yaml")
}
