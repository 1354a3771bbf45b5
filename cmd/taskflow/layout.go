package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbukum/taskflow/layout"
)

func newLayoutCommand(a *app) *cobra.Command {
	var (
		outputJSON bool
		sweeps     int
	)
	cmd := &cobra.Command{
		Use:   "layout FILE",
		Short: "Print the layered layout of a graph",
		Long:  "layout assigns every node a layer (its longest path from an entry) and an order within the layer that keeps edge crossings low.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.loadGraph(args[0])
			if err != nil {
				return err
			}
			var opts []layout.Option
			if sweeps > 0 {
				opts = append(opts, layout.WithSweeps(sweeps))
			}
			l, err := layout.Layered(g, opts...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				return writeJSON(out, l)
			}
			for i, layer := range l.Layers {
				fmt.Fprintf(out, "L%d: %s\n", i, strings.Join(layer, "  "))
			}
			fmt.Fprintf(out, "\n%d layers, %d crossings, %.0fx%.0f\n", len(l.Layers), layout.Crossings(l), l.Width, l.Height)
			return nil
		},
	}
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Emit positions as JSON")
	cmd.Flags().IntVar(&sweeps, "sweeps", 0, "Crossing-reduction sweeps (default: layout default)")
	return cmd
}
