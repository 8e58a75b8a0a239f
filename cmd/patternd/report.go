package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func newReportCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Regenerate insights.json and report.md from the store",
		Long: `Regenerate insights and recommendations from the current pattern store
without reading any evidence, and write insights.json and report.md.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.Report.Dir == "" {
				return errors.New("report directory is not configured")
			}
			eng, err := a.engine()
			if err != nil {
				return err
			}
			sum, err := eng.Report(cmd.Context())
			if err != nil {
				return err
			}
			renderSummary(cmd.OutOrStdout(), sum)
			return nil
		},
	}
}
