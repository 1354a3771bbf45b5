package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbukum/taskflow/bootstrap"
	"github.com/kbukum/taskflow/dag"
	"github.com/kbukum/taskflow/runs"
	"github.com/kbukum/taskflow/runstore"
)

// runFlags override configuration for one invocation.
type runFlags struct {
	maxParallel int
	policy      string
	store       string
	runID       string
	outputJSON  bool
	quiet       bool
}

func (f *runFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.maxParallel, "max-parallel", -1, "Maximum nodes in flight (0 = unlimited; default from config)")
	cmd.Flags().StringVar(&f.policy, "policy", "", "Failure policy: skip, fail-propagate or execute-with-hole")
	cmd.Flags().StringVar(&f.store, "store", "", "Run store directory (file driver) or database path (sqlite driver)")
	cmd.Flags().BoolVar(&f.outputJSON, "json", false, "Print the run summary as JSON")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Do not print per-node progress")
}

// apply folds the flags into the loaded configuration.
func (f *runFlags) apply(a *app) error {
	if f.maxParallel >= 0 {
		a.cfg.Scheduler.MaxParallel = f.maxParallel
	}
	if f.policy != "" {
		if _, err := dag.ParseFailurePolicy(f.policy); err != nil {
			return err
		}
		a.cfg.Scheduler.FailurePolicy = f.policy
	}
	if f.store != "" {
		a.cfg.Store.Path = f.store
	}
	return nil
}

func newRunCommand(a *app) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Execute a graph and record the run",
		Example: `  # Run a graph with at most two nodes in flight
  taskflow run graphs/research.yaml --max-parallel 2

  # Abort on the first failure and print the summary as JSON
  taskflow run research --policy fail-propagate --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.apply(a); err != nil {
				return err
			}
			g, err := a.loadGraph(args[0])
			if err != nil {
				return err
			}
			return a.execute(cmd, &flags, func(m *runs.Manager) (*runs.Handle, error) {
				return m.Start(g, flags.runID)
			})
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&flags.runID, "run-id", "", "Run id (default: a new UUID)")
	return cmd
}

// execute starts a run through start, waits for it to be saved and
// prints the summary. A run that did not fully succeed exits non-zero.
func (a *app) execute(cmd *cobra.Command, flags *runFlags, start func(*runs.Manager) (*runs.Handle, error)) error {
	ctx := cmd.Context()
	lifecycle, err := a.bootstrap(bootstrap.WithGracefulTimeout(10 * time.Second))
	if err != nil {
		return err
	}
	var opts []runs.Option
	if !flags.quiet && !flags.outputJSON {
		opts = append(opts, runs.WithObserver(progressPrinter(cmd.ErrOrStderr())))
	}
	m, err := a.manager(ctx, nil, opts...)
	if err != nil {
		return err
	}
	if err := lifecycle.RegisterComponent(runs.NewComponent(m, a.cfg.Store.Driver)); err != nil {
		_ = m.Shutdown(context.Background())
		return err
	}

	var rec *runstore.RunRecord
	err = lifecycle.RunTask(ctx, func(context.Context) error {
		handle, err := start(m)
		if err != nil {
			return err
		}
		// A cancelled context still saves the run; wait without it.
		rec, err = handle.Wait(context.Background())
		if err != nil {
			return fmt.Errorf("saving run %s: %w", handle.Run.ID(), err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return a.report(cmd.OutOrStdout(), flags.outputJSON, rec)
}

func (a *app) report(out io.Writer, outputJSON bool, rec *runstore.RunRecord) error {
	sum := rec.Summary()
	if outputJSON {
		if err := writeJSON(out, sum); err != nil {
			return err
		}
	} else {
		var exits []string
		if g, err := rec.Graph.Graph(); err == nil {
			exits = g.Exits()
		}
		renderSummary(out, sum, exits)
		fmt.Fprintf(out, "\nSaved run %s to the %s store.\n", rec.ID, a.cfg.Store.Driver)
	}
	if result := sum.Result(); result != dag.ResultSuccess {
		return &exitError{code: 3, msg: fmt.Sprintf("run %s finished with result %s", rec.ID, result)}
	}
	return nil
}
