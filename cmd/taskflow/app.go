package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kbukum/taskflow/bootstrap"
	"github.com/kbukum/taskflow/config"
	"github.com/kbukum/taskflow/dag"
	"github.com/kbukum/taskflow/llm"
	"github.com/kbukum/taskflow/logger"
	"github.com/kbukum/taskflow/observability"
	"github.com/kbukum/taskflow/runs"
	"github.com/kbukum/taskflow/runstore"
	"github.com/kbukum/taskflow/tool"
)

// app is the state shared by every command.
type app struct {
	cfg config.AppConfig
	log *logger.Logger

	configFile string
	envFile    string
	logLevel   string
	logFormat  string

	loaderOpts []config.LoaderOption
}

func newApp() *app {
	return &app{}
}

// loadGraph reads a graph document from path, or finds it by name in the
// configured graph directories.
func (a *app) loadGraph(arg string) (*dag.Graph, error) {
	path := arg
	if _, err := os.Stat(path); err != nil {
		found, findErr := dag.FindDocument(arg, a.cfg.GraphDirs...)
		if findErr != nil {
			return nil, fmt.Errorf("graph %s: %w", arg, findErr)
		}
		path = found
	}
	doc, err := dag.LoadDocument(path)
	if err != nil {
		return nil, err
	}
	return doc.Graph()
}

// capabilities builds the model client and the tool registry. A model
// configuration that does not validate leaves model-call nodes without a
// provider; they fail when dispatched.
func (a *app) capabilities(m *observability.Metrics) (dag.Capabilities, error) {
	var caps dag.Capabilities

	tools, err := a.cfg.Tools.Build(tool.Builtins()...)
	if err != nil {
		return caps, fmt.Errorf("building tools: %w", err)
	}
	caps.Tools = tools

	client, err := llm.NewClient(a.cfg.LLM, a.log, m)
	if err != nil {
		a.log.Warn("model calls disabled", logger.ErrorFields("llm_client", err))
		return caps, nil
	}
	caps.Models = llm.ModelCapability(client)
	return caps, nil
}

// scheduler builds the dispatcher and scheduler from the configuration.
func (a *app) scheduler(m *observability.Metrics) (*dag.Scheduler, error) {
	caps, err := a.capabilities(m)
	if err != nil {
		return nil, err
	}
	d := dag.NewDispatcher(caps, a.cfg.DispatcherOptions()...)
	execLog := logger.Get("executor")
	d.Wrap(func(exec dag.Executor) dag.Executor { return dag.WithLogging(exec, execLog) })
	if a.cfg.Tracing.Enabled {
		d.Wrap(dag.WithTracing)
	}
	if m != nil {
		d.Wrap(func(exec dag.Executor) dag.Executor { return dag.WithMetrics(exec, m) })
	}

	opts := a.cfg.SchedulerOptions()
	opts = append(opts, dag.WithLogger(logger.GetGlobalLogger()))
	if m != nil {
		opts = append(opts, dag.WithRunMetrics(m))
	}
	return dag.NewScheduler(d, opts...), nil
}

// manager opens the run store and builds a run manager over it.
func (a *app) manager(ctx context.Context, m *observability.Metrics, opts ...runs.Option) (*runs.Manager, error) {
	sched, err := a.scheduler(m)
	if err != nil {
		return nil, err
	}
	store, err := runstore.Open(a.cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}
	opts = append([]runs.Option{runs.WithLogger(logger.GetGlobalLogger())}, opts...)
	return runs.NewManager(ctx, sched, store, opts...), nil
}

// bootstrap wraps the loaded configuration in a process lifecycle that
// logs through the already initialized global logger.
func (a *app) bootstrap(opts ...bootstrap.Option) (*bootstrap.App[*config.AppConfig], error) {
	opts = append([]bootstrap.Option{bootstrap.WithLogger(logger.GetGlobalLogger())}, opts...)
	return bootstrap.NewApp(&a.cfg, opts...)
}
