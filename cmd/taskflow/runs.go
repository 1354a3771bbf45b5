package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
	}
	cmd.AddCommand(newRunsListCommand(a), newRunsShowCommand(a))
	return cmd
}

func newRunsListCommand(a *app) *cobra.Command {
	var outputJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recorded runs, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.manager(ctx, nil)
			if err != nil {
				return err
			}
			defer m.Shutdown(ctx)

			infos, err := m.List(ctx)
			if err != nil {
				return err
			}
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), infos)
			}
			if len(infos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			renderRunList(cmd.OutOrStdout(), infos)
			return nil
		},
	}
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Print the list as JSON")
	return cmd
}

func newRunsShowCommand(a *app) *cobra.Command {
	var (
		outputJSON bool
		events     bool
	)
	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show the summary of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.manager(ctx, nil)
			if err != nil {
				return err
			}
			defer m.Shutdown(ctx)

			rec, err := m.Record(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if outputJSON {
				return writeJSON(out, rec)
			}
			if rec.ParentID != "" {
				fmt.Fprintf(out, "Replay of %s\n", rec.ParentID)
			}
			var exits []string
			if g, err := rec.Graph.Graph(); err == nil {
				exits = g.Exits()
			}
			renderSummary(out, rec.Summary(), exits)
			if events {
				fmt.Fprintln(out, "\nEvents:")
				for _, ev := range rec.Events {
					line := eventLine(ev)
					if line == "" {
						line = "  " + string(ev.Kind)
					}
					fmt.Fprintf(out, "%4d %s %s\n", ev.Seq, ev.Time.Local().Format(time.TimeOnly), line)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Print the full record as JSON")
	cmd.Flags().BoolVar(&events, "events", false, "Also print the recorded events")
	return cmd
}
