package graph

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/leofalp/sqlgraph/providers/observability"
)

// Run executes the graph from its entry point until End and returns the last
// merged state. On error the state accumulated so far is returned alongside
// the error.
func (graph *Graph[S, D]) Run(ctx context.Context, initial S) (S, error) {
	final := initial
	for event, err := range graph.Stream(ctx, initial) {
		if err != nil {
			return final, err
		}
		final = event.State
	}
	return final, nil
}

// Stream executes the graph and yields one Event per node with the state
// after that node's delta was merged. The next node starts only when the
// consumer asks for the next event, so breaking out of the loop stops the
// run. A failing run yields a final event carrying the state before the
// failing node together with the error.
func (graph *Graph[S, D]) Stream(ctx context.Context, initial S) iter.Seq2[Event[S], error] {
	return func(yield func(Event[S], error) bool) {
		if graph.config.executionTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, graph.config.executionTimeout)
			defer cancel()
		}

		runStart := time.Now()
		ctx, observer, span := graph.observeRunStart(ctx)

		current := initial
		name := graph.entry
		step := 0
		for name != End {
			if err := ctx.Err(); err != nil {
				runErr := fmt.Errorf("graph run canceled before node %q: %w", name, err)
				graph.observeRunFailed(ctx, observer, span, runErr, step, time.Since(runStart))
				yield(Event[S]{Step: step, Node: name, State: current, Next: End}, runErr)
				return
			}
			if step >= graph.config.maxSteps {
				runErr := fmt.Errorf("%w: limit %d reached before node %q", ErrMaxStepsExceeded, graph.config.maxSteps, name)
				graph.observeRunFailed(ctx, observer, span, runErr, step, time.Since(runStart))
				yield(Event[S]{Step: step, Node: name, State: current, Next: End}, runErr)
				return
			}
			step++

			graphNode := graph.nodes[name]
			next, duration, err := graph.runNode(ctx, observer, graphNode, current, step)
			if err != nil {
				runErr := fmt.Errorf("node %q failed: %w", name, err)
				graph.observeRunFailed(ctx, observer, span, runErr, step, time.Since(runStart))
				yield(Event[S]{Step: step, Node: name, State: current, Duration: duration, Next: End}, runErr)
				return
			}
			current = next

			nextName := End
			if graph.stopWhen == nil || !graph.stopWhen(current) {
				nextName = graph.nextNode(name, current)
			}

			if !yield(Event[S]{Step: step, Node: name, State: current, Duration: duration, Next: nextName}, nil) {
				graph.observeRunStopped(ctx, observer, span, step, time.Since(runStart))
				return
			}
			name = nextName
		}

		graph.observeRunCompleted(ctx, observer, span, step, time.Since(runStart))
	}
}

// runNode invokes one node with its timeout and merges its delta.
func (graph *Graph[S, D]) runNode(ctx context.Context, observer observability.Provider, graphNode *node[S, D], current S, step int) (S, time.Duration, error) {
	nodeContext := ctx
	if graphNode.timeout > 0 {
		var cancel context.CancelFunc
		nodeContext, cancel = context.WithTimeout(ctx, graphNode.timeout)
		defer cancel()
	}

	nodeContext, span := graph.observeNodeStart(nodeContext, observer, graphNode.name, step)
	nodeStart := time.Now()
	delta, err := graphNode.run.Run(nodeContext, current)
	duration := time.Since(nodeStart)

	if err != nil {
		graph.observeNodeFailed(nodeContext, observer, span, graphNode.name, err, duration)
		return current, duration, err
	}

	graph.observeNodeCompleted(nodeContext, observer, span, graphNode.name, duration)
	return graph.merge(current, delta), duration, nil
}

// nextNode returns the target of the first outgoing edge of from whose
// condition holds, or End.
func (graph *Graph[S, D]) nextNode(from string, current S) string {
	for _, graphEdge := range graph.edges[from] {
		if graphEdge.condition == nil || graphEdge.condition(current) {
			return graphEdge.to
		}
	}
	return End
}
