package pipeline

import (
	"context"
	"time"

	"github.com/leofalp/sqlgraph/core/state"
	"github.com/leofalp/sqlgraph/providers/observability"
)

func observeStageStart(ctx context.Context, observer observability.Provider, name string, current state.ExecutionState) (context.Context, observability.Span) {
	if observer == nil {
		return ctx, nil
	}

	ctx, span := observer.StartSpan(ctx, observability.SpanNodeRun,
		observability.String(observability.AttrNodeType, name),
		observability.String(observability.AttrTaskID, current.Task.ID),
	)
	observer.Debug(ctx, "stage started",
		append([]observability.Attribute{observability.String(observability.AttrNodeType, name)},
			observability.Fields(current.Keys())...)...,
	)
	return ctx, span
}

func observeStageCompleted(ctx context.Context, observer observability.Provider, span observability.Span, name string, record state.StepRecord, duration time.Duration) {
	if observer == nil {
		return
	}

	observer.Counter(observability.MetricNodeCount).Add(ctx, 1,
		observability.String(observability.AttrNodeType, name),
		observability.String(observability.AttrNodeStatus, string(state.StatusSuccess)),
	)
	observer.Histogram(observability.MetricNodeDuration).Record(ctx, duration.Seconds(),
		observability.String(observability.AttrNodeType, name),
	)
	observer.Info(ctx, "stage completed",
		observability.String(observability.AttrNodeType, name),
		observability.Duration(observability.AttrDuration, duration),
		observability.StringSlice("node.fields", record.Keys()),
	)
	span.SetStatus(observability.StatusOK, "")
	span.End()
}

func observeStageFailed(ctx context.Context, observer observability.Provider, span observability.Span, name string, kind state.ErrorKind, err error, policy FailurePolicy, duration time.Duration) {
	if observer == nil {
		return
	}

	observer.Counter(observability.MetricNodeCount).Add(ctx, 1,
		observability.String(observability.AttrNodeType, name),
		observability.String(observability.AttrNodeStatus, string(state.StatusError)),
		observability.String(observability.AttrErrorKind, string(kind)),
	)
	observer.Histogram(observability.MetricNodeDuration).Record(ctx, duration.Seconds(),
		observability.String(observability.AttrNodeType, name),
	)

	attrs := []observability.Attribute{
		observability.String(observability.AttrNodeType, name),
		observability.String(observability.AttrErrorKind, string(kind)),
		observability.String("node.failure_policy", policy.String()),
		observability.Duration(observability.AttrDuration, duration),
		observability.Error(err),
	}
	if policy == ContinueOnError {
		observer.Warn(ctx, "stage failed, continuing", attrs...)
	} else {
		observer.Error(ctx, "stage failed", attrs...)
	}

	span.RecordError(err)
	span.SetAttributes(observability.String(observability.AttrErrorKind, string(kind)))
	span.SetStatus(observability.StatusError, "stage failed")
	span.End()
}
