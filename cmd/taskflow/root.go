package main

import (
	"github.com/spf13/cobra"

	"github.com/kbukum/taskflow/config"
	"github.com/kbukum/taskflow/logger"
)

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "taskflow",
		Short:         "Execute task graphs of model calls, tool calls and parameter guards",
		Long:          "taskflow runs directed acyclic task graphs with maximal parallelism, records every run, and replays runs with overridden node inputs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load(cmd)
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "Path to the config file (default: config.yml lookup)")
	flags.StringVar(&a.envFile, "env-file", "", "Path to a .env file")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format (console, json)")

	cmd.AddCommand(
		newValidateCommand(a),
		newRunCommand(a),
		newReplayCommand(a),
		newRunsCommand(a),
		newLayoutCommand(a),
		newServeCommand(a),
		newVersionCommand(),
	)
	return cmd
}

// load reads the configuration and sets up logging. Commands other than
// serve log to stderr at warn unless told otherwise, keeping stdout for
// results.
func (a *app) load(cmd *cobra.Command) error {
	opts := append([]config.LoaderOption(nil), a.loaderOpts...)
	if a.configFile != "" {
		opts = append(opts, config.WithConfigFile(a.configFile))
	}
	if a.envFile != "" {
		opts = append(opts, config.WithEnvFile(a.envFile))
	}
	if err := config.LoadConfig(config.ServiceName, &a.cfg, opts...); err != nil {
		return err
	}
	a.cfg.ApplyDefaults()

	serving := cmd.Name() == "serve"
	if !serving {
		a.cfg.Logging.Output = "stderr"
		a.cfg.Logging.Level = "warn"
	}
	if a.logLevel != "" {
		a.cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		a.cfg.Logging.Format = a.logFormat
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	logger.Init(&a.cfg.Logging)
	a.log = logger.Get("cli")
	return nil
}
