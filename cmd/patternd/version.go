package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "patternd by Fyrsmith Labs\n")
			fmt.Fprintf(w, "Version:    %s\n", version)
			fmt.Fprintf(w, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(w, "Build Date: %s\n", buildDate)
		},
	}
}
