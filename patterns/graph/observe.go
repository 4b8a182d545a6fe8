package graph

import (
	"context"
	"time"

	"github.com/leofalp/sqlgraph/providers/observability"
)

// Semantic conventions for graph observability attributes.
const (
	// spanGraphRun is the span name for one run of the graph.
	spanGraphRun = "sqlgraph.graph.run"

	// spanGraphNode is the span name for one node invocation.
	spanGraphNode = "sqlgraph.graph.node"

	// attrGraphName is the graph name set with WithName.
	attrGraphName = "graph.name"

	// attrGraphNode identifies the node within the graph.
	attrGraphNode = "graph.node"

	// attrGraphStep is the 1-based step of the node in the run.
	attrGraphStep = "graph.step"

	// attrGraphEntry is the entry node of the graph.
	attrGraphEntry = "graph.entry"

	// attrGraphStatus is the outcome of a run: completed, stopped or failed.
	attrGraphStatus = "graph.status"

	// metricGraphRunDuration is the histogram of whole-run durations.
	metricGraphRunDuration = "sqlgraph.graph.run.duration"

	// metricGraphStepCount counts node invocations by node and status.
	metricGraphStepCount = "sqlgraph.graph.step.count"
)

// resolveObserver prefers the configured observer and falls back to the one
// attached to ctx.
func (graph *Graph[S, D]) resolveObserver(ctx context.Context) observability.Provider {
	if graph.config.observer != nil {
		return graph.config.observer
	}
	return observability.ObserverFromContext(ctx)
}

func (graph *Graph[S, D]) observeBuildWarnings() {
	if graph.config.observer == nil {
		return
	}
	for _, warning := range graph.warnings {
		graph.config.observer.Warn(context.Background(), "graph edge dropped",
			observability.String(attrGraphName, graph.name),
			observability.String("graph.warning", warning),
		)
	}
}

// observeRunStart creates the root span of a run and attaches the observer to
// the context so nodes can reach it.
func (graph *Graph[S, D]) observeRunStart(ctx context.Context) (context.Context, observability.Provider, observability.Span) {
	observer := graph.resolveObserver(ctx)
	if observer == nil {
		return ctx, nil, nil
	}

	ctx, span := observer.StartSpan(ctx, spanGraphRun,
		observability.String(attrGraphName, graph.name),
		observability.String(attrGraphEntry, graph.entry),
		observability.Int("graph.total_nodes", len(graph.nodes)),
	)
	ctx = observability.ContextWithObserver(ctx, observer)

	observer.Debug(ctx, "graph run started",
		observability.String(attrGraphName, graph.name),
		observability.String(attrGraphEntry, graph.entry),
	)
	return ctx, observer, span
}

func (graph *Graph[S, D]) observeRunCompleted(ctx context.Context, observer observability.Provider, span observability.Span, steps int, duration time.Duration) {
	graph.observeRunEnded(ctx, observer, span, "completed", steps, duration)
}

func (graph *Graph[S, D]) observeRunStopped(ctx context.Context, observer observability.Provider, span observability.Span, steps int, duration time.Duration) {
	graph.observeRunEnded(ctx, observer, span, "stopped", steps, duration)
}

func (graph *Graph[S, D]) observeRunEnded(ctx context.Context, observer observability.Provider, span observability.Span, status string, steps int, duration time.Duration) {
	if observer == nil {
		return
	}

	observer.Histogram(metricGraphRunDuration).Record(ctx, duration.Seconds(),
		observability.String(attrGraphName, graph.name),
		observability.String(attrGraphStatus, status),
	)
	observer.Debug(ctx, "graph run "+status,
		observability.String(attrGraphName, graph.name),
		observability.Int(attrGraphStep, steps),
		observability.Duration(observability.AttrDuration, duration),
	)
	span.SetAttributes(observability.String(attrGraphStatus, status), observability.Int(attrGraphStep, steps))
	span.SetStatus(observability.StatusOK, "graph run "+status)
	span.End()
}

func (graph *Graph[S, D]) observeRunFailed(ctx context.Context, observer observability.Provider, span observability.Span, runErr error, steps int, duration time.Duration) {
	if observer == nil {
		return
	}

	observer.Histogram(metricGraphRunDuration).Record(ctx, duration.Seconds(),
		observability.String(attrGraphName, graph.name),
		observability.String(attrGraphStatus, "failed"),
	)
	observer.Error(ctx, "graph run failed",
		observability.String(attrGraphName, graph.name),
		observability.Int(attrGraphStep, steps),
		observability.Duration(observability.AttrDuration, duration),
		observability.Error(runErr),
	)
	span.RecordError(runErr)
	span.SetStatus(observability.StatusError, "graph run failed")
	span.End()
}

// observeNodeStart creates a child span for a node invocation.
func (graph *Graph[S, D]) observeNodeStart(ctx context.Context, observer observability.Provider, name string, step int) (context.Context, observability.Span) {
	if observer == nil {
		return ctx, nil
	}

	ctx, span := observer.StartSpan(ctx, spanGraphNode,
		observability.String(attrGraphNode, name),
		observability.Int(attrGraphStep, step),
	)
	observer.Trace(ctx, "graph node started",
		observability.String(attrGraphNode, name),
		observability.Int(attrGraphStep, step),
	)
	return ctx, span
}

func (graph *Graph[S, D]) observeNodeCompleted(ctx context.Context, observer observability.Provider, span observability.Span, name string, duration time.Duration) {
	if observer == nil {
		return
	}

	observer.Counter(metricGraphStepCount).Add(ctx, 1,
		observability.String(attrGraphNode, name),
		observability.String(attrGraphStatus, "completed"),
	)
	span.SetAttributes(observability.Duration(observability.AttrDuration, duration))
	span.SetStatus(observability.StatusOK, "node completed")
	span.End()
}

func (graph *Graph[S, D]) observeNodeFailed(ctx context.Context, observer observability.Provider, span observability.Span, name string, nodeErr error, duration time.Duration) {
	if observer == nil {
		return
	}

	observer.Counter(metricGraphStepCount).Add(ctx, 1,
		observability.String(attrGraphNode, name),
		observability.String(attrGraphStatus, "failed"),
	)
	observer.Error(ctx, "graph node failed",
		observability.String(attrGraphNode, name),
		observability.Duration(observability.AttrDuration, duration),
		observability.Error(nodeErr),
	)
	span.RecordError(nodeErr)
	span.SetStatus(observability.StatusError, "node failed")
	span.End()
}
