package main

import (
	"github.com/spf13/cobra"
)

func newAnalyzeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Run one full analysis pass",
		Long: `Run one full analysis pass over both evidence sources, merge the result
into the pattern store, and write insights.json and report.md.

Examples:
  patternd analyze
  patternd analyze --solutions logs/solutions.jsonl --store learning/patterns.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			eng, err := a.engine()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			res, err := eng.Analyze(ctx)
			if err != nil {
				return err
			}
			sum, err := eng.Insights(ctx)
			if err != nil {
				return err
			}
			renderPass(cmd.OutOrStdout(), res, sum)
			return nil
		},
	}
}
