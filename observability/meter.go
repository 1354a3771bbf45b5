package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/taskflow/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	ServiceName    string        `yaml:"service_name" mapstructure:"service_name"`
	ServiceVersion string        `yaml:"service_version" mapstructure:"service_version"`
	Environment    string        `yaml:"environment" mapstructure:"environment"`
	Endpoint       string        `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `yaml:"insecure" mapstructure:"insecure"`
	Interval       time.Duration `yaml:"interval" mapstructure:"interval"`
}

// DefaultMeterConfig returns development defaults.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "dev",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter installs a global meter provider exporting over OTLP HTTP.
func InitMeter(ctx context.Context, config MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(config.Endpoint)}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the instruments recorded by the scheduler, node executors
// and capability providers.
type Metrics struct {
	runTotal          metric.Int64Counter
	runDuration       metric.Float64Histogram
	nodeTotal         metric.Int64Counter
	nodeDuration      metric.Float64Histogram
	nodeActive        metric.Int64UpDownCounter
	operationTotal    metric.Int64Counter
	operationDuration metric.Float64Histogram
	errorTotal        metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.runTotal, err = meter.Int64Counter("taskflow.run.total",
		metric.WithDescription("Runs finished, by final stage")); err != nil {
		return nil, fmt.Errorf("creating taskflow.run.total counter: %w", err)
	}
	if m.runDuration, err = meter.Float64Histogram("taskflow.run.duration",
		metric.WithDescription("Run wall time"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating taskflow.run.duration histogram: %w", err)
	}
	if m.nodeTotal, err = meter.Int64Counter("taskflow.node.total",
		metric.WithDescription("Node executions, by kind and status")); err != nil {
		return nil, fmt.Errorf("creating taskflow.node.total counter: %w", err)
	}
	if m.nodeDuration, err = meter.Float64Histogram("taskflow.node.duration",
		metric.WithDescription("Node execution time"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating taskflow.node.duration histogram: %w", err)
	}
	if m.nodeActive, err = meter.Int64UpDownCounter("taskflow.node.active",
		metric.WithDescription("Nodes currently executing")); err != nil {
		return nil, fmt.Errorf("creating taskflow.node.active gauge: %w", err)
	}
	if m.operationTotal, err = meter.Int64Counter("operation.total",
		metric.WithDescription("Capability calls")); err != nil {
		return nil, fmt.Errorf("creating operation.total counter: %w", err)
	}
	if m.operationDuration, err = meter.Float64Histogram("operation.duration",
		metric.WithDescription("Capability call duration"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating operation.duration histogram: %w", err)
	}
	if m.errorTotal, err = meter.Int64Counter("error.total",
		metric.WithDescription("Errors by type and component")); err != nil {
		return nil, fmt.Errorf("creating error.total counter: %w", err)
	}
	return &m, nil
}

// NodeStarted increments the active node gauge.
func (m *Metrics) NodeStarted(ctx context.Context, kind string) {
	m.nodeActive.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// NodeFinished decrements the active gauge and records the execution.
func (m *Metrics) NodeFinished(ctx context.Context, kind, status string, duration time.Duration) {
	m.nodeActive.Add(ctx, -1, metric.WithAttributes(attribute.String("kind", kind)))
	m.nodeTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
	m.nodeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(ctx context.Context, stage string, duration time.Duration) {
	m.runTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	m.runDuration.Record(ctx, duration.Seconds())
}

// RecordOperation records a capability call.
func (m *Metrics) RecordOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	m.operationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
	m.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("operation", operation),
	))
}

// RecordError records an error by type and component.
func (m *Metrics) RecordError(ctx context.Context, errType, component string) {
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", errType),
		attribute.String("component", component),
	))
}
