package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/taskflow/dag"
)

type validateReport struct {
	Graph    string   `json:"graph"`
	Valid    bool     `json:"valid"`
	Nodes    int      `json:"nodes,omitempty"`
	Edges    int      `json:"edges,omitempty"`
	Entries  []string `json:"entries,omitempty"`
	Exits    []string `json:"exits,omitempty"`
	Problems []string `json:"problems,omitempty"`
}

func newValidateCommand(a *app) *cobra.Command {
	var outputJSON bool
	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a graph document for cycles, dangling edges and bad references",
		Example: `  # Validate a graph file
  taskflow validate graphs/research.yaml

  # Validate a graph found by name in the graph directories
  taskflow validate research --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report := validateReport{Graph: args[0]}
			g, err := a.loadGraph(args[0])
			if err != nil {
				report.Problems = problems(err)
			} else {
				report.Valid = true
				report.Nodes = g.Len()
				report.Edges = len(g.Edges())
				report.Entries = g.Entries()
				report.Exits = g.Exits()
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else if report.Valid {
				fmt.Fprintf(out, "%s: valid (%d nodes, %d edges)\n", report.Graph, report.Nodes, report.Edges)
				fmt.Fprintf(out, "  entries: %s\n", joinOrDash(report.Entries))
				fmt.Fprintf(out, "  exits:   %s\n", joinOrDash(report.Exits))
			} else {
				fmt.Fprintf(out, "%s: invalid\n", report.Graph)
				for _, p := range report.Problems {
					fmt.Fprintf(out, "  - %s\n", p)
				}
			}
			if !report.Valid {
				return &exitError{code: 2, msg: fmt.Sprintf("graph %s is invalid", report.Graph)}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Emit the report as JSON")
	return cmd
}

// problems lists the individual validation failures in err.
func problems(err error) []string {
	appErr := dag.ToAppError(err)
	if list, ok := appErr.Details["problems"].([]string); ok {
		return list
	}
	return []string{err.Error()}
}
