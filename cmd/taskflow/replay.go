package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/kbukum/taskflow/dag"
	"github.com/kbukum/taskflow/runs"
)

func newReplayCommand(a *app) *cobra.Command {
	var (
		flags        runFlags
		overrideFile string
		sets         []string
		dryRun       bool
	)
	cmd := &cobra.Command{
		Use:   "replay RUN_ID",
		Short: "Re-run a recorded run with overridden node inputs",
		Long: `replay re-executes only the overridden nodes and their descendants.
Every other node keeps the output recorded by the prior run.`,
		Example: `  # Override one node's input from a file
  taskflow replay 7f9c... --override overrides.yaml

  # Show which nodes would re-execute
  taskflow replay 7f9c... --set summarize='{"style": "short"}' --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.apply(a); err != nil {
				return err
			}
			overrides, err := loadOverrides(overrideFile, sets)
			if err != nil {
				return err
			}
			if len(overrides) == 0 {
				return fmt.Errorf("no overrides given; use --override FILE or --set NODE=VALUE")
			}
			priorID := args[0]

			if dryRun {
				return a.planReplay(cmd, priorID, overrides, flags.outputJSON)
			}
			return a.execute(cmd, &flags, func(m *runs.Manager) (*runs.Handle, error) {
				return m.Replay(cmd.Context(), priorID, overrides)
			})
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&overrideFile, "override", "", "YAML or JSON file mapping node ids to replacement inputs")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Override one node input as NODE=VALUE (VALUE is YAML or JSON; repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List the nodes that would re-execute without running")
	return cmd
}

// loadOverrides merges the override file with --set values, which win.
func loadOverrides(path string, sets []string) (dag.OverrideMap, error) {
	overrides := dag.OverrideMap{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var m map[string]any
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for id, v := range m {
			overrides[id] = v
		}
	}
	for _, set := range sets {
		id, raw, ok := strings.Cut(set, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("--set %q: want NODE=VALUE", set)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("--set %s: %w", id, err)
		}
		overrides[id] = v
	}
	return overrides, nil
}

type replayPlan struct {
	PriorID  string   `json:"prior_id"`
	Affected []string `json:"affected"`
	Copied   []string `json:"copied"`
}

// planReplay prints the affected set of a replay without running it.
func (a *app) planReplay(cmd *cobra.Command, priorID string, overrides dag.OverrideMap, outputJSON bool) error {
	ctx := cmd.Context()
	m, err := a.manager(ctx, nil)
	if err != nil {
		return err
	}
	defer m.Shutdown(ctx)

	g, err := m.Graph(ctx, priorID)
	if err != nil {
		return err
	}
	if err := dag.CheckOverrides(g, overrides); err != nil {
		return err
	}
	plan := replayPlan{PriorID: priorID, Affected: dag.AffectedSet(g, overrides)}
	affected := make(map[string]bool, len(plan.Affected))
	for _, id := range plan.Affected {
		affected[id] = true
	}
	for _, id := range g.IDs() {
		if !affected[id] {
			plan.Copied = append(plan.Copied, id)
		}
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return writeJSON(out, plan)
	}
	fmt.Fprintf(out, "Replay of %s would re-execute %d of %d nodes.\n", priorID, len(plan.Affected), g.Len())
	fmt.Fprintf(out, "  re-execute: %s\n", joinOrDash(plan.Affected))
	fmt.Fprintf(out, "  copy:       %s\n", joinOrDash(plan.Copied))
	return nil
}
