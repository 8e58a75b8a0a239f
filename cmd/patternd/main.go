// Patternd learns recurring patterns from agent task history and turns them
// into recommendations.
//
// Usage:
//
//	# One full analysis pass
//	patternd analyze
//
//	# Keep learning as new solutions arrive
//	patternd monitor --metrics-addr localhost:9464
//
//	# What do we know about this error?
//	echo '{"error":"Module not found: foo"}' | patternd apply -
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// globalFlags override the loaded configuration when set.
type globalFlags struct {
	configPath string
	solutions  string
	metrics    string
	store      string
	reportDir  string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "patternd",
		Short: "Learn recurring patterns from agent task history",
		Long: `patternd mines the solutions log and orchestration metrics written by a
multi-agent system, generalises repeated evidence into confidence-scored
patterns, and produces insights and recommendations from them.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default ~/.config/patternd/config.yaml)")
	pf.StringVar(&flags.solutions, "solutions", "", "solutions log (JSON lines)")
	pf.StringVar(&flags.metrics, "metrics", "", "orchestration metrics file (JSON)")
	pf.StringVar(&flags.store, "store", "", "pattern store file")
	pf.StringVar(&flags.reportDir, "report-dir", "", "directory for insights.json and report.md")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	root.AddCommand(
		newAnalyzeCmd(flags),
		newMonitorCmd(flags),
		newReportCmd(flags),
		newApplyCmd(flags),
		newMCPCmd(flags),
		newVersionCmd(),
	)
	return root
}
