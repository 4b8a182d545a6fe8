package state

import "slices"

// ExecutionState is the value threaded through the graph. Nodes receive it by
// value and return a [Delta]; they never mutate the state they were given.
type ExecutionState struct {
	Task Task

	// TentativeSchema is narrowed by the selection stages.
	TentativeSchema Schema

	// FullSchema is the complete database schema the run started from. It is
	// the source for columns restored after narrowing.
	FullSchema Schema

	History History

	// Chat is a snapshot of the session's chat context, nil for one-shot runs.
	Chat *ChatContext

	// Halted stops the run after the current node.
	Halted     bool
	HaltReason string
}

// NewExecutionState returns the initial state for task over schema. The
// schema becomes both the tentative and the full schema.
func NewExecutionState(task Task, schema Schema) ExecutionState {
	return ExecutionState{
		Task:            task,
		TentativeSchema: schema.Clone(),
		FullSchema:      schema.Clone(),
	}
}

// Delta is what one node contributes to the state. Nil fields leave the
// corresponding state untouched.
type Delta struct {
	// Task replaces the task when set.
	Task *Task

	// TentativeSchema replaces the tentative schema when non-nil.
	TentativeSchema Schema

	// Records are appended to the history in order.
	Records []StepRecord

	// Halt stops the run after this node.
	Halt       bool
	HaltReason string
}

// Apply merges delta into a copy of the state and returns it. The merge is
// additive: fields the delta leaves unset keep their current value and the
// history only grows.
func (executionState ExecutionState) Apply(delta Delta) ExecutionState {
	next := executionState
	if delta.Task != nil {
		next.Task = delta.Task.Clone()
	}
	if delta.TentativeSchema != nil {
		next.TentativeSchema = delta.TentativeSchema.Clone()
	}
	for _, record := range delta.Records {
		next.History = next.History.Append(record)
	}
	if delta.Halt {
		next.Halted = true
		next.HaltReason = delta.HaltReason
	}
	return next
}

// Then combines delta with a later delta into one. Later replacements win,
// records keep their order and a halt in either is kept.
func (delta Delta) Then(later Delta) Delta {
	combined := Delta{
		Task:            delta.Task,
		TentativeSchema: delta.TentativeSchema,
		Records:         append(slices.Clip(delta.Records), later.Records...),
		Halt:            delta.Halt,
		HaltReason:      delta.HaltReason,
	}
	if later.Task != nil {
		combined.Task = later.Task
	}
	if later.TentativeSchema != nil {
		combined.TentativeSchema = later.TentativeSchema
	}
	if later.Halt && !combined.Halt {
		combined.Halt = true
		combined.HaltReason = later.HaltReason
	}
	return combined
}

// Keys summarizes the state for logging without its contents.
func (executionState ExecutionState) Keys() map[string]any {
	return map[string]any{
		"task_id":       executionState.Task.ID,
		"db_id":         executionState.Task.DBID,
		"schema_tables": len(executionState.TentativeSchema),
		"history_len":   executionState.History.Len(),
		"chat":          executionState.Chat != nil,
		"halted":        executionState.Halted,
	}
}
