package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var analyzeOutput string

// AnalyzeCmd diffs a proposed export against the stored state of the device
// it names and reports the blast radius.
var AnalyzeCmd = &cobra.Command{
	Use:   "analyze <proposed-export>",
	Short: "Analyze the blast radius of a proposed configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close(ctx)

		rep, err := e.AnalyzeFile(ctx, args[0])
		if err != nil {
			return err
		}

		if analyzeOutput != "" {
			if err := rep.Save(analyzeOutput); err != nil {
				return err
			}
		}
		return rep.WriteText(os.Stdout)
	},
}

func init() {
	AnalyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "also write the report to a file (.json/.yaml/.txt)")
}
