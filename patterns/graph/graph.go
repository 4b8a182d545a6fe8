package graph

import (
	"context"
	"time"

	"github.com/leofalp/sqlgraph/providers/observability"
)

// End is the terminal sentinel. An edge to End finishes the run after its
// source node.
const End = "__end__"

// Node is one processing step. Run receives the accumulated state and returns
// the delta it contributes.
type Node[S, D any] interface {
	Run(ctx context.Context, state S) (D, error)
}

// NodeFunc is an adapter that allows using an ordinary function as a Node.
type NodeFunc[S, D any] func(ctx context.Context, state S) (D, error)

// Run calls the underlying function, satisfying the Node interface.
func (nodeFunc NodeFunc[S, D]) Run(ctx context.Context, state S) (D, error) {
	return nodeFunc(ctx, state)
}

// MergeFunc folds a node's delta into the accumulated state.
type MergeFunc[S, D any] func(state S, delta D) S

// EdgeCondition decides whether an edge is taken, given the state after the
// source node ran. A nil condition always holds.
type EdgeCondition[S any] func(state S) bool

// Event is one step of a streamed run.
type Event[S any] struct {
	// Step is the 1-based position of the node in this run.
	Step int

	// Node is the name of the node that just ran.
	Node string

	// State is the accumulated state after the node's delta was merged.
	State S

	// Duration is the wall-clock time the node took.
	Duration time.Duration

	// Next is the node that runs next, or End.
	Next string
}

type node[S, D any] struct {
	name    string
	run     Node[S, D]
	timeout time.Duration
}

type edge[S any] struct {
	from      string
	to        string
	condition EdgeCondition[S]
}

// graphConfig holds the configuration for a Graph, populated by Options.
type graphConfig struct {
	// maxSteps bounds the number of node invocations of one run.
	maxSteps int

	// executionTimeout is the maximum duration of one run. Zero means none.
	executionTimeout time.Duration

	// observer receives spans, metrics and logs. Nil disables observation.
	observer observability.Provider

	// name labels the graph in logs.
	name string
}

// Graph is a validated, executable graph. It holds no run state and is safe
// for concurrent runs.
type Graph[S, D any] struct {
	name      string
	nodes     map[string]*node[S, D]
	nodeOrder []string
	edges     map[string][]*edge[S]
	entry     string
	merge     MergeFunc[S, D]
	stopWhen  func(S) bool
	warnings  []string
	config    graphConfig
}

// Name returns the graph name set with WithName.
func (graph *Graph[S, D]) Name() string {
	return graph.name
}

// Entry returns the entry node.
func (graph *Graph[S, D]) Entry() string {
	return graph.entry
}

// Nodes returns the node names in registration order.
func (graph *Graph[S, D]) Nodes() []string {
	return append([]string(nil), graph.nodeOrder...)
}

// Edges returns the kept edges as from/to pairs in declaration order.
func (graph *Graph[S, D]) Edges() [][2]string {
	pairs := make([][2]string, 0)
	for _, from := range graph.nodeOrder {
		for _, graphEdge := range graph.edges[from] {
			pairs = append(pairs, [2]string{graphEdge.from, graphEdge.to})
		}
	}
	return pairs
}

// Warnings returns the configuration warnings collected at build time, one
// per dropped edge.
func (graph *Graph[S, D]) Warnings() []string {
	return append([]string(nil), graph.warnings...)
}
