package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/taskflow/version"
)

func newVersionCommand() *cobra.Command {
	var (
		short      bool
		outputJSON bool
	)
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch {
			case outputJSON:
				return writeJSON(out, version.Get())
			case short:
				fmt.Fprintln(out, version.Short())
			default:
				fmt.Fprintln(out, version.Full())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Print build information as JSON")
	return cmd
}
