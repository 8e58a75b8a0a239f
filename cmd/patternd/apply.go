package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/patternd/internal/matcher"
)

const maxSituationSize = 1 << 20

func newApplyCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <situation-json|->",
		Short: "Print the learned patterns that apply to a situation",
		Long: `Match a situation against the pattern store and print the suggestions as
JSON. The situation is a JSON object with optional "error", "tasks" and
"taskType" fields, given inline or on stdin with "-".

Examples:
  patternd apply '{"error":"Module not found: foo"}'
  echo '{"tasks":[{"type":"build"},{"type":"test"}]}' | patternd apply -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readSituation(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			var sit matcher.Situation
			if err := json.Unmarshal(raw, &sit); err != nil {
				return fmt.Errorf("invalid situation JSON: %w", err)
			}

			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			eng, err := a.engine()
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(eng.Apply(cmd.Context(), sit))
		},
	}
}

func readSituation(stdin io.Reader, arg string) ([]byte, error) {
	if arg != "-" {
		return []byte(arg), nil
	}
	if stdin == nil {
		stdin = os.Stdin
	}
	raw, err := io.ReadAll(io.LimitReader(stdin, maxSituationSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read from stdin: %w", err)
	}
	if len(raw) > maxSituationSize {
		return nil, fmt.Errorf("situation exceeds %d bytes", maxSituationSize)
	}
	return raw, nil
}
