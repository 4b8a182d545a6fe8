package pipeline

import (
	"context"

	"github.com/leofalp/sqlgraph/core/state"
)

// Input is the part of the execution state a stage may read. Every field is
// a copy; stages cannot reach the state they were projected from.
type Input struct {
	Task state.Task

	// Schema is the tentative schema.
	Schema state.Schema

	// FullSchema is the schema the run started from.
	FullSchema state.Schema

	History state.History

	// Chat is nil outside chat sessions.
	Chat *state.ChatContext
}

func project(current state.ExecutionState) Input {
	return Input{
		Task:       current.Task.Clone(),
		Schema:     current.TentativeSchema.Clone(),
		FullSchema: current.FullSchema.Clone(),
		History:    current.History,
		Chat:       current.Chat.Clone(),
	}
}

// Output is what a stage produced.
type Output struct {
	// Fields become the step record payload. They are kept on failure too.
	Fields map[string]any

	// Task replaces the run's task when set.
	Task *state.Task

	// Schema replaces the tentative schema when non-nil.
	Schema state.Schema
}

// Stage is one named step of the pipeline.
type Stage interface {
	// Name is the node type recorded in the history.
	Name() string

	// Run performs the step. A returned error is contained by [Wrap]; the
	// output fields returned alongside it are recorded with the error.
	Run(ctx context.Context, input Input) (Output, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	StageName string
	Func      func(ctx context.Context, input Input) (Output, error)
}

// Name implements Stage.
func (stageFunc StageFunc) Name() string {
	return stageFunc.StageName
}

// Run implements Stage.
func (stageFunc StageFunc) Run(ctx context.Context, input Input) (Output, error) {
	return stageFunc.Func(ctx, input)
}
