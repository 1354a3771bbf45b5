package dag

import (
	"context"
	"time"

	"github.com/kbukum/taskflow/logger"
	"github.com/kbukum/taskflow/observability"
)

// WithTracing wraps exec so each execution runs in a span named
// "taskflow.node.<kind>".
func WithTracing(exec Executor) Executor {
	return ExecutorFunc(func(ctx context.Context, req ExecRequest) (any, error) {
		ctx, span := observability.StartSpan(ctx, observability.SpanNodePrefix+"."+string(req.Node.Kind))
		defer span.End()

		observability.SetSpanAttribute(ctx, observability.AttrNodeID, req.Node.ID)
		observability.SetSpanAttribute(ctx, observability.AttrNodeKind, string(req.Node.Kind))
		observability.SetSpanAttribute(ctx, observability.AttrRunID, req.RunID)

		out, err := exec.Execute(ctx, req)
		status := StatusSucceeded
		if err != nil {
			status = StatusFailed
			observability.SetSpanError(ctx, err)
		}
		observability.SetSpanAttribute(ctx, observability.AttrNodeStatus, string(status))
		return out, err
	})
}

// WithMetrics wraps exec to record node starts, durations and outcomes.
func WithMetrics(exec Executor, m *observability.Metrics) Executor {
	return ExecutorFunc(func(ctx context.Context, req ExecRequest) (any, error) {
		kind := string(req.Node.Kind)
		m.NodeStarted(ctx, kind)
		start := time.Now()

		out, err := exec.Execute(ctx, req)

		status := string(StatusSucceeded)
		if err != nil {
			status = string(StatusFailed)
			m.RecordError(ctx, "node", kind)
		}
		m.NodeFinished(ctx, kind, status, time.Since(start))
		return out, err
	})
}

// WithLogging wraps exec to log each execution at debug, and failures at
// warn.
func WithLogging(exec Executor, log *logger.Logger) Executor {
	return ExecutorFunc(func(ctx context.Context, req ExecRequest) (any, error) {
		start := time.Now()
		out, err := exec.Execute(ctx, req)

		fields := logger.MergeWithDuration(map[string]interface{}{
			logger.FieldRunID:    req.RunID,
			logger.FieldNodeID:   req.Node.ID,
			logger.FieldNodeKind: string(req.Node.Kind),
		}, time.Since(start))
		l := log.WithContext(ctx)
		if err != nil {
			l.Warn("executor failed", logger.MergeWithError(fields, err))
		} else {
			l.Debug("executor finished", fields)
		}
		return out, err
	})
}
