// Package pipeline turns the NL-to-SQL workflow into an executable graph.
//
// The unit of work is a [Stage]: one request pattern against the model or a
// collaborator, written as a pure function of an [Input] projected out of
// the execution state. [Wrap] adapts a stage into a graph node that checks
// preconditions, times the call, contains errors and panics, and appends
// exactly one step record to the history.
//
// Stages are grouped into agents, each a graph node running its stages in
// order. Both come from a closed registry: [BuildGraph] resolves the names
// listed in a [Config] and fails on any name it does not know. Edges are
// data; an edge that names a node missing from the configuration is dropped
// with a warning.
//
// A typical configuration lists stages directly:
//
//	nodes: [keyword_extraction, entity_retrieval, context_retrieval,
//	        column_filtering, table_selection, column_selection,
//	        candidate_generation, revision, sql_execution, response_generation]
//
// or agents:
//
//	nodes: [information_retriever, schema_selector, candidate_generator,
//	        sql_executor, response_generator]
package pipeline
