package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbukum/taskflow/component"
	"github.com/kbukum/taskflow/logger"
)

// App owns the component registry and lifecycle hooks of one process.
// The type parameter C is the config type.
type App[C Config] struct {
	Name       string
	Version    string
	Cfg        C
	Components *component.Registry
	Logger     *logger.Logger
	Summary    *Summary

	gracefulTimeout time.Duration
	summaryOut      io.Writer
	onConfigure     []func(ctx context.Context, app *App[C]) error

	onStart []Hook
	onReady []Hook
	onStop  []Hook
}

// NewApp applies defaults to cfg, validates it and prepares the app.
func NewApp[C Config](cfg C, opts ...Option) (*App[C], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	base := cfg.GetServiceConfig()

	o := resolveOptions(opts)
	app := &App[C]{
		Name:            base.Name,
		Version:         base.Version,
		Cfg:             cfg,
		Components:      o.registry,
		gracefulTimeout: 15 * time.Second,
		summaryOut:      o.summary,
	}
	if app.Components == nil {
		app.Components = component.NewRegistry()
	}
	if o.gracefulTimeout != nil {
		app.gracefulTimeout = *o.gracefulTimeout
	}
	if o.logger != nil {
		app.Logger = o.logger
	} else {
		logger.Init(cfg.GetLogging())
		app.Logger = logger.GetGlobalLogger()
	}
	app.Summary = NewSummary(base.Name, base.Version)
	return app, nil
}

// RegisterComponent adds components to the registry. Register
// dependencies first: they start first and stop last.
func (a *App[C]) RegisterComponent(cs ...component.Component) error {
	for _, c := range cs {
		if err := a.Components.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// OnConfigure registers a callback that runs after the start hooks, once
// every component is up.
func (a *App[C]) OnConfigure(fn func(ctx context.Context, app *App[C]) error) {
	a.onConfigure = append(a.onConfigure, fn)
}

// ReadyCheck reports every component that is not healthy.
func (a *App[C]) ReadyCheck(ctx context.Context) error {
	var unhealthy []string
	for _, h := range a.Components.HealthAll(ctx) {
		if h.Status == component.StatusHealthy {
			continue
		}
		detail := h.Name + "=" + string(h.Status)
		if h.Message != "" {
			detail += "(" + h.Message + ")"
		}
		unhealthy = append(unhealthy, detail)
	}
	if len(unhealthy) > 0 {
		return fmt.Errorf("unhealthy components: %v", unhealthy)
	}
	return nil
}

// Run starts the app, blocks until ctx is cancelled or a termination
// signal arrives, then shuts down.
func (a *App[C]) Run(ctx context.Context) error {
	if err := a.startup(ctx); err != nil {
		return err
	}
	a.Logger.Info("application ready", map[string]interface{}{"name": a.Name})
	a.WaitForSignal(ctx)
	return a.stop()
}

// RunTask starts the app, runs task and shuts down when it returns. A
// termination signal cancels the task's context. The task error wins over
// a shutdown error.
func (a *App[C]) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	if err := a.startup(ctx); err != nil {
		return err
	}

	taskCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	taskErr := task(taskCtx)

	if stopErr := a.stop(); stopErr != nil && taskErr == nil {
		return stopErr
	}
	return taskErr
}

// WaitForSignal blocks until ctx is done or SIGINT/SIGTERM arrives.
func (a *App[C]) WaitForSignal(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.Logger.Info("received signal", map[string]interface{}{"signal": sig.String()})
	case <-ctx.Done():
		a.Logger.Info("context cancelled")
	}
}

func (a *App[C]) startup(ctx context.Context) error {
	start := time.Now()
	a.Logger.Debug("starting application", map[string]interface{}{
		"name":    a.Name,
		"version": a.Version,
	})

	if err := a.Components.StartAll(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	if err := runHooks(ctx, a.onStart); err != nil {
		return a.abort(fmt.Errorf("onStart hook failed: %w", err))
	}
	for _, fn := range a.onConfigure {
		if err := fn(ctx, a); err != nil {
			return a.abort(fmt.Errorf("configuration failed: %w", err))
		}
	}
	if err := a.ReadyCheck(ctx); err != nil {
		a.Logger.Warn("ready check reported issues", logger.ErrorFields("ready_check", err))
	}
	if err := runHooks(ctx, a.onReady); err != nil {
		return a.abort(fmt.Errorf("onReady hook failed: %w", err))
	}

	a.Summary.SetStartupDuration(time.Since(start))
	a.Summary.Collect(ctx, a.Components)
	a.Summary.Log(a.Logger)
	if a.summaryOut != nil {
		a.Summary.Write(a.summaryOut)
	}
	return nil
}

// abort stops the components a failed startup already started.
func (a *App[C]) abort(err error) error {
	if stopErr := a.stop(); stopErr != nil {
		return errors.Join(err, stopErr)
	}
	return err
}

func (a *App[C]) stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	a.Logger.Debug("shutting down", map[string]interface{}{"timeout": a.gracefulTimeout.String()})
	hookErr := runHooks(ctx, a.onStop)
	if hookErr != nil {
		a.Logger.Error("onStop hook failed", logger.ErrorFields("on_stop", hookErr))
	}
	stopErr := a.Components.StopAll(ctx)
	if err := errors.Join(hookErr, stopErr); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
