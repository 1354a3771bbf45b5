package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kbukum/taskflow/api"
	"github.com/kbukum/taskflow/bootstrap"
	"github.com/kbukum/taskflow/component"
	"github.com/kbukum/taskflow/logger"
	"github.com/kbukum/taskflow/observability"
	"github.com/kbukum/taskflow/runs"
	"github.com/kbukum/taskflow/server"
	"github.com/kbukum/taskflow/sse"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API over HTTP",
		Long: `serve accepts graph documents over HTTP, runs them, streams their events
as Server-Sent Events and records every finished run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if host != "" {
				a.cfg.Server.Host = host
			}
			if port > 0 {
				a.cfg.Server.Port = port
			}
			return a.serve(cmd)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Listen host (default from config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (default from config)")
	return cmd
}

// telemetry holds the providers installed when tracing is enabled.
type telemetry struct {
	tracer  *sdktrace.TracerProvider
	meter   *sdkmetric.MeterProvider
	metrics *observability.Metrics
}

func (a *app) initTelemetry(ctx context.Context) (*telemetry, error) {
	t := &telemetry{}
	if !a.cfg.Tracing.Enabled {
		return t, nil
	}
	tc := a.cfg.Tracing
	if tc.ServiceVersion == "" {
		tc.ServiceVersion = a.cfg.Base.Version
	}
	tp, err := observability.InitTracer(ctx, tc)
	if err != nil {
		return nil, err
	}
	t.tracer = tp

	mc := observability.DefaultMeterConfig(tc.ServiceName)
	mc.ServiceVersion = tc.ServiceVersion
	mc.Environment = tc.Environment
	mc.Endpoint = tc.Endpoint
	mc.Insecure = tc.Insecure
	mp, err := observability.InitMeter(ctx, mc)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	t.meter = mp

	t.metrics, err = observability.NewMetrics(observability.Meter(tc.ServiceName))
	if err != nil {
		_ = t.shutdown(ctx)
		return nil, err
	}
	return t, nil
}

// shutdown flushes both providers concurrently.
func (t *telemetry) shutdown(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if t.tracer != nil {
		g.Go(func() error { return t.tracer.Shutdown(gctx) })
	}
	if t.meter != nil {
		g.Go(func() error { return t.meter.Shutdown(gctx) })
	}
	return g.Wait()
}

// Registered first so it stops last and flushes the spans of shutdown.
func (t *telemetry) Name() string { return "telemetry" }

func (t *telemetry) Start(context.Context) error { return nil }

func (t *telemetry) Stop(ctx context.Context) error { return t.shutdown(ctx) }

func (t *telemetry) Health(context.Context) component.Health {
	h := component.Health{Name: t.Name(), Status: component.StatusHealthy}
	if t.tracer == nil {
		h.Message = "disabled"
	}
	return h
}

func (a *app) serve(cmd *cobra.Command) error {
	ctx := cmd.Context()
	registry := component.NewRegistry()
	lifecycle, err := a.bootstrap(
		bootstrap.WithRegistry(registry),
		bootstrap.WithGracefulTimeout(shutdownTimeout),
		bootstrap.WithSummary(cmd.ErrOrStderr()),
	)
	if err != nil {
		return err
	}

	tel, err := a.initTelemetry(ctx)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	hub := sse.NewComponent("/api/v1/runs/:id/events")
	// Runs outlive the request that started them, so they hang off a
	// context cancelled only by shutdown.
	m, err := a.manager(context.WithoutCancel(ctx), tel.metrics, runs.WithBroadcaster(hub.Hub()))
	if err != nil {
		_ = tel.shutdown(context.Background())
		return err
	}

	srv := server.New(a.cfg.Server, logger.GetGlobalLogger())
	api.NewHandler(m, hub.Hub(), api.WithRateLimit(a.cfg.Server.RateLimit)).Register(srv.GinEngine())
	srv.RegisterDefaultEndpoints(a.cfg.Base.Name, registry.HealthAll, func() map[string]any {
		return map[string]any{
			"runs_active": m.ActiveCount(),
			"sse_clients": hub.Hub().ClientCount(),
		}
	})

	// Stopped in reverse: runs are cancelled and close their event
	// streams before the server drains.
	if err := lifecycle.RegisterComponent(
		tel,
		hub,
		server.NewComponent(srv),
		runs.NewComponent(m, a.cfg.Store.Driver),
	); err != nil {
		_ = m.Shutdown(context.Background())
		_ = tel.shutdown(context.Background())
		return err
	}
	lifecycle.OnReady(func(context.Context) error {
		lifecycle.Logger.Info("taskflow serving", map[string]interface{}{
			"addr":  srv.Addr(),
			"store": a.cfg.Store.Driver,
		})
		return nil
	})
	return lifecycle.Run(ctx)
}
