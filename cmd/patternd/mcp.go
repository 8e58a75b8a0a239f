package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/patternd/internal/mcp"
)

func newMCPCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve learned patterns to agents over MCP (stdio)",
		Long: `Run an MCP server on stdin/stdout exposing the pattern_apply,
pattern_insights and pattern_list tools. Logs go to stderr.`,
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

			metrics, err := mcp.NewMetrics(a.telemetry.Meter(mcp.InstrumentationName))
			if err != nil {
				return err
			}
			srv, err := mcp.NewServer(&mcp.Config{
				Name:    "patternd",
				Version: version,
				Logger:  a.logger.Underlying(),
				Metrics: metrics,
			}, eng)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
}
