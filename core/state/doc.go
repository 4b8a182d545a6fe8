// Package state holds the data threaded through one pipeline run: the [Task],
// the progressively narrowed tentative [Schema], the append-only [History] of
// [StepRecord] values and, for chat sessions, a read-only [ChatContext] snapshot.
//
// [ExecutionState] is a value. Nodes never mutate the state they receive; they
// return a [Delta] that the orchestrator merges with [ExecutionState.Apply].
// History appends copy the backing array, so a history observed by one node is
// never modified by another.
package state
