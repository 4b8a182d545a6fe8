package graph

import (
	"errors"
	"fmt"
	"slices"
)

// Builder assembles a Graph step by step; mistakes surface from Build, which
// checks that:
//   - node names are unique and never End
//   - the entry point is a registered node
//   - no edge between registered nodes is declared twice
//   - unconditional edges alone form no cycle
//
// Edges referencing unregistered nodes are not errors: they are dropped and
// reported through Graph.Warnings.
//
// Example:
//
//	compiled, err := graph.NewBuilder(state.ExecutionState.Apply).
//	    AddNode("schema_selector", selector).
//	    AddNode("candidate_generator", generator).
//	    AddEdge("schema_selector", "candidate_generator").
//	    AddEdge("candidate_generator", graph.End).
//	    SetEntryPoint("schema_selector").
//	    Build()
type Builder[S, D any] struct {
	config    graphConfig
	merge     MergeFunc[S, D]
	nodes     map[string]*node[S, D]
	nodeOrder []string

	// edges keeps unresolved edges too; Build drops them with a warning.
	edges []*edge[S]

	// entry defaults to the first registered node.
	entry    string
	stopWhen func(S) bool

	// buildErrors collects AddNode and AddEdge mistakes for Build.
	buildErrors []error
}

// NewBuilder creates a Builder whose graphs fold deltas into state with merge.
func NewBuilder[S, D any](merge MergeFunc[S, D], opts ...Option) *Builder[S, D] {
	config := graphConfig{maxSteps: DefaultMaxSteps}
	for _, opt := range opts {
		opt(&config)
	}

	return &Builder[S, D]{
		config: config,
		merge:  merge,
		nodes:  make(map[string]*node[S, D]),
	}
}

// AddNode registers run under name. Empty, reserved or duplicate names and a
// nil run are reported by Build.
func (builder *Builder[S, D]) AddNode(name string, run Node[S, D], opts ...NodeOption) *Builder[S, D] {
	switch {
	case name == "":
		builder.buildErrors = append(builder.buildErrors, errors.New("node name must not be empty"))
		return builder
	case name == End:
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("node name %q is reserved", End))
		return builder
	case run == nil:
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("node %q must not be nil", name))
		return builder
	}

	if _, exists := builder.nodes[name]; exists {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("duplicate node %q", name))
		return builder
	}

	var config nodeConfig
	for _, opt := range opts {
		opt(&config)
	}

	builder.nodes[name] = &node[S, D]{name: name, run: run, timeout: config.timeout}
	builder.nodeOrder = append(builder.nodeOrder, name)
	return builder
}

// AddEdge declares that to runs after from. Use End as the target to finish
// the run after from.
func (builder *Builder[S, D]) AddEdge(from, to string) *Builder[S, D] {
	return builder.AddConditionalEdge(from, to, nil)
}

// AddConditionalEdge declares an edge that is taken only when condition holds
// for the state after from ran. Outgoing edges are evaluated in declaration
// order and the first one that holds wins; when none holds the run ends.
func (builder *Builder[S, D]) AddConditionalEdge(from, to string, condition EdgeCondition[S]) *Builder[S, D] {
	if from == "" || to == "" {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("edge endpoints must not be empty (from=%q, to=%q)", from, to))
		return builder
	}

	builder.edges = append(builder.edges, &edge[S]{from: from, to: to, condition: condition})
	return builder
}

// SetEntryPoint designates the first node of every run. Without it the first
// registered node is the entry point.
func (builder *Builder[S, D]) SetEntryPoint(name string) *Builder[S, D] {
	builder.entry = name
	return builder
}

// StopWhen ends a run after any node whose resulting state satisfies stop,
// regardless of outgoing edges.
func (builder *Builder[S, D]) StopWhen(stop func(S) bool) *Builder[S, D] {
	builder.stopWhen = stop
	return builder
}

// Build validates the graph structure and produces an executable Graph.
// It performs the following validations:
//
//  1. No accumulated build errors from AddNode/AddEdge
//  2. A merge function and at least one node exist
//  3. The entry point names a registered node
//  4. Edges with unregistered endpoints are dropped with a warning
//  5. No duplicate edges
//  6. Unconditional edges form no cycle (Kahn's algorithm)
func (builder *Builder[S, D]) Build() (*Graph[S, D], error) {
	if len(builder.buildErrors) > 0 {
		return nil, fmt.Errorf("graph build errors: %w", errors.Join(builder.buildErrors...))
	}
	if builder.merge == nil {
		return nil, errors.New("graph merge function must not be nil")
	}
	if len(builder.nodes) == 0 {
		return nil, ErrNoNodes
	}

	entry := builder.entry
	if entry == "" {
		entry = builder.nodeOrder[0]
	}
	if _, exists := builder.nodes[entry]; !exists {
		return nil, &ConfigurationError{Component: "entry point", Name: entry, Reason: "node is not registered"}
	}

	edges, warnings, err := builder.resolveEdges()
	if err != nil {
		return nil, err
	}

	if cycle := unconditionalCycle(builder.nodeOrder, edges); len(cycle) > 0 {
		return nil, fmt.Errorf("unconditional cycle detected in graph involving nodes: %v", cycle)
	}

	compiled := &Graph[S, D]{
		name:      builder.config.name,
		nodes:     builder.nodes,
		nodeOrder: slices.Clone(builder.nodeOrder),
		edges:     edges,
		entry:     entry,
		merge:     builder.merge,
		stopWhen:  builder.stopWhen,
		warnings:  warnings,
		config:    builder.config,
	}
	compiled.observeBuildWarnings()
	return compiled, nil
}

// resolveEdges groups edges by source, dropping edges with unregistered
// endpoints and rejecting duplicates.
func (builder *Builder[S, D]) resolveEdges() (map[string][]*edge[S], []string, error) {
	edges := make(map[string][]*edge[S], len(builder.nodes))
	seen := make(map[[2]string]bool, len(builder.edges))
	var warnings []string

	for _, graphEdge := range builder.edges {
		if _, exists := builder.nodes[graphEdge.from]; !exists {
			warnings = append(warnings, (&ConfigurationError{Component: "edge source", Name: graphEdge.from, Reason: "node is not registered, edge to " + graphEdge.to + " dropped"}).Error())
			continue
		}
		if _, exists := builder.nodes[graphEdge.to]; !exists && graphEdge.to != End {
			warnings = append(warnings, (&ConfigurationError{Component: "edge target", Name: graphEdge.to, Reason: "node is not registered, edge from " + graphEdge.from + " dropped"}).Error())
			continue
		}

		key := [2]string{graphEdge.from, graphEdge.to}
		if seen[key] {
			return nil, nil, fmt.Errorf("duplicate edge from %q to %q", graphEdge.from, graphEdge.to)
		}
		seen[key] = true
		edges[graphEdge.from] = append(edges[graphEdge.from], graphEdge)
	}

	return edges, warnings, nil
}

// unconditionalCycle runs Kahn's algorithm over the unconditional edges and
// returns the sorted names of nodes left on a cycle, or nil.
func unconditionalCycle[S any](nodeOrder []string, edges map[string][]*edge[S]) []string {
	inDegree := make(map[string]int, len(nodeOrder))
	for _, name := range nodeOrder {
		inDegree[name] = 0
	}
	for _, outgoing := range edges {
		for _, graphEdge := range outgoing {
			if graphEdge.condition == nil && graphEdge.to != End {
				inDegree[graphEdge.to]++
			}
		}
	}

	queue := make([]string, 0, len(nodeOrder))
	for _, name := range nodeOrder {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	processed := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		processed++

		for _, graphEdge := range edges[name] {
			if graphEdge.condition != nil || graphEdge.to == End {
				continue
			}
			inDegree[graphEdge.to]--
			if inDegree[graphEdge.to] == 0 {
				queue = append(queue, graphEdge.to)
			}
		}
	}

	if processed == len(nodeOrder) {
		return nil
	}

	cycleNodes := make([]string, 0)
	for name, degree := range inDegree {
		if degree > 0 {
			cycleNodes = append(cycleNodes, name)
		}
	}
	slices.Sort(cycleNodes)
	return cycleNodes
}
