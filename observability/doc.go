// Package observability wires OpenTelemetry tracing and metrics for taskflow.
//
// Every node execution gets a span named "taskflow.node.<kind>" carrying the
// node id, and the Metrics instruments count runs, node executions and
// capability calls:
//
//	tp, err := observability.InitTracer(ctx, cfg.Tracing)
//	defer tp.Shutdown(ctx)
//
//	metrics, _ := observability.NewMetrics(observability.Meter("taskflow"))
//	exec = dag.WithMetrics(exec, metrics)
package observability
