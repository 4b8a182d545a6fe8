package pipeline

import (
	"errors"
	"fmt"
	"slices"

	"github.com/leofalp/sqlgraph/core/state"
	"github.com/leofalp/sqlgraph/patterns/graph"
)

// Graph is the compiled pipeline.
type Graph = graph.Graph[state.ExecutionState, state.Delta]

// DefaultGraphName names graphs built without WithGraphName.
const DefaultGraphName = "sqlgraph"

type buildConfig struct {
	chat bool
	name string
}

// BuildOption configures BuildGraph.
type BuildOption func(*buildConfig)

// WithChat puts the chat context analyzer in front of the configured nodes,
// unless the configuration already lists it.
func WithChat() BuildOption {
	return func(build *buildConfig) {
		build.chat = true
	}
}

// WithGraphName names the graph in logs and spans.
func WithGraphName(name string) BuildOption {
	return func(build *buildConfig) {
		build.name = name
	}
}

// BuildGraph compiles config into a graph. Every node name must be a known
// agent or stage; unknown names fail the build together. Without explicit
// edges the nodes form a chain in the listed order. The run stops after a
// node that halts it. Dropped edges are reported by Graph.Warnings.
func BuildGraph(config Config, deps Deps, opts ...BuildOption) (*Graph, error) {
	build := buildConfig{name: DefaultGraphName}
	for _, opt := range opts {
		opt(&build)
	}

	nodes := config.Nodes
	if len(nodes) == 0 {
		nodes = DefaultNodes
	}
	edges := config.Edges
	if len(edges) == 0 {
		for index := 1; index < len(nodes); index++ {
			edges = append(edges, EdgeConfig{From: nodes[index-1], To: nodes[index]})
		}
	}
	entry := config.Entry
	if build.chat && !slices.Contains(nodes, AgentChatContextAnalyzer) && !slices.Contains(nodes, state.NodeContextEnhancement) {
		if entry == "" {
			entry = nodes[0]
		}
		nodes = append([]string{AgentChatContextAnalyzer}, nodes...)
		edges = append([]EdgeConfig{{From: AgentChatContextAnalyzer, To: entry}}, edges...)
		entry = AgentChatContextAnalyzer
	}

	graphOpts := []graph.Option{graph.WithName(build.name), graph.WithObserver(deps.Observer)}
	if config.MaxSteps > 0 {
		graphOpts = append(graphOpts, graph.WithMaxSteps(config.MaxSteps))
	}
	var nodeOpts []graph.NodeOption
	if config.NodeTimeout > 0 {
		nodeOpts = append(nodeOpts, graph.WithNodeTimeout(config.NodeTimeout))
	}

	builder := graph.NewBuilder[state.ExecutionState, state.Delta](state.ExecutionState.Apply, graphOpts...)
	var errs []error
	for _, name := range nodes {
		node, err := newNode(name, config, deps)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		builder.AddNode(name, node, nodeOpts...)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("pipeline configuration: %w", errors.Join(errs...))
	}

	for _, edge := range edges {
		builder.AddEdge(edge.From, edge.To)
	}
	if entry != "" {
		builder.SetEntryPoint(entry)
	}
	builder.StopWhen(func(current state.ExecutionState) bool {
		return current.Halted
	})
	return builder.Build()
}

func newNode(name string, config Config, deps Deps) (Node, error) {
	if _, isAgent := defaultAgents[name]; isAgent {
		return NewAgent(name, config, deps)
	}
	if _, isStage := stageFactories[name]; isStage {
		return NewStage(name, config, deps)
	}
	return nil, &graph.ConfigurationError{Component: "node", Name: name, Reason: "not a known agent or stage"}
}
