// Package graph implements a directed graph of named, stateful nodes for
// orchestrating multi-step LLM workflows.
//
// A graph is generic over the state S threaded through it and the delta D each
// node contributes. Nodes never mutate the state they receive: they return a
// delta, and the graph merges it into the accumulated state with the merge
// function given to [NewBuilder]. Nodes run strictly one at a time in edge
// order starting from the entry point; the next node is the target of the
// first outgoing edge whose condition holds, and [End] marks the end of the
// run.
//
// Edges are data. An edge naming a node that was never registered is dropped
// with a warning at build time (see [Graph.Warnings]) so that a configuration
// can reference agents that are not rolled out yet. An unknown entry point, a
// duplicate node or an unconditional cycle is a build error.
//
// The main entry points are [NewBuilder] to construct a graph, [Graph.Run] to
// run it to completion, and [Graph.Stream] to observe every intermediate
// state. Streaming is pull based: a consumer that stops iterating stops the
// run before the next node starts.
//
// Example:
//
//	compiled, err := graph.NewBuilder(merge, graph.WithMaxSteps(50)).
//	    AddNode("select", selectNode).
//	    AddNode("generate", generateNode).
//	    AddEdge("select", "generate").
//	    AddEdge("generate", graph.End).
//	    SetEntryPoint("select").
//	    Build()
//
//	for event, err := range compiled.Stream(ctx, initial) {
//	    if err != nil { return err }
//	    fmt.Println(event.Node, event.Step)
//	}
package graph
