package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/leofalp/sqlgraph/core/state"
	"github.com/leofalp/sqlgraph/patterns/graph"
	"github.com/leofalp/sqlgraph/providers/observability"
)

// Node is the graph node type every stage and agent compiles to.
type Node = graph.NodeFunc[state.ExecutionState, state.Delta]

// FailurePolicy decides whether a failed stage stops the run.
type FailurePolicy int

const (
	// HaltOnError stops the run after the failed stage's record.
	HaltOnError FailurePolicy = iota

	// ContinueOnError lets downstream stages run without this stage's result.
	ContinueOnError
)

// ParseFailurePolicy maps "halt" and "continue" to a policy.
func ParseFailurePolicy(value string) (FailurePolicy, error) {
	switch value {
	case "halt":
		return HaltOnError, nil
	case "continue":
		return ContinueOnError, nil
	default:
		return HaltOnError, fmt.Errorf("unknown failure policy %q (want halt or continue)", value)
	}
}

func (policy FailurePolicy) String() string {
	if policy == ContinueOnError {
		return "continue"
	}
	return "halt"
}

type wrapConfig struct {
	checkSchema bool
	policy      FailurePolicy
	observer    observability.Provider
}

// WrapOption configures Wrap.
type WrapOption func(*wrapConfig)

// WithoutSchemaCheck runs the stage even when the tentative schema is empty.
func WithoutSchemaCheck() WrapOption {
	return func(config *wrapConfig) {
		config.checkSchema = false
	}
}

// WithFailurePolicy sets what a failure of the stage does to the run.
func WithFailurePolicy(policy FailurePolicy) WrapOption {
	return func(config *wrapConfig) {
		config.policy = policy
	}
}

// WithObserver sets the observer. Without it the observer attached to the
// run context is used.
func WithObserver(observer observability.Provider) WrapOption {
	return func(config *wrapConfig) {
		config.observer = observer
	}
}

// Wrap adapts stage into a graph node. On every invocation the node:
//
//  1. fails with a PreconditionError when the tentative schema is empty,
//     unless WithoutSchemaCheck was given
//  2. runs the stage on an Input projected from the state
//  3. turns the output, or the error or panic, into one step record
//     carrying the stage name and duration
//  4. returns a delta appending that record
//
// The node itself never returns an error. Failures halt the run according
// to the failure policy (HaltOnError by default).
func Wrap(stage Stage, opts ...WrapOption) Node {
	config := wrapConfig{checkSchema: true, policy: HaltOnError}
	for _, opt := range opts {
		opt(&config)
	}

	return func(ctx context.Context, current state.ExecutionState) (state.Delta, error) {
		return runStage(ctx, stage, config, current), nil
	}
}

func runStage(ctx context.Context, stage Stage, config wrapConfig, current state.ExecutionState) state.Delta {
	name := stage.Name()
	observer := config.observer
	if observer == nil {
		observer = observability.ObserverFromContext(ctx)
	}

	ctx, span := observeStageStart(ctx, observer, name, current)
	startedAt := time.Now()

	var (
		output Output
		err    error
	)
	if config.checkSchema && current.TentativeSchema.Empty() {
		err = &PreconditionError{Node: name, Reason: "tentative schema is empty"}
	} else {
		output, err = safeRun(ctx, stage, project(current))
	}
	duration := time.Since(startedAt)

	if err != nil {
		kind := ErrorKind(err)
		record := state.NewErrorRecord(name, kind, err, output.Fields, startedAt, duration)
		delta := state.Delta{Records: []state.StepRecord{record}}
		if config.policy == HaltOnError {
			delta.Halt = true
			delta.HaltReason = fmt.Sprintf("%s failed: %v", name, err)
		}
		observeStageFailed(ctx, observer, span, name, kind, err, config.policy, duration)
		return delta
	}

	record := state.NewStepRecord(name, output.Fields, startedAt, duration)
	observeStageCompleted(ctx, observer, span, name, record, duration)
	return state.Delta{
		Task:            output.Task,
		TentativeSchema: output.Schema,
		Records:         []state.StepRecord{record},
	}
}

// safeRun runs the stage, converting a panic into a PanicError.
func safeRun(ctx context.Context, stage Stage, input Input) (output Output, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			output = Output{}
			err = &PanicError{Node: stage.Name(), Value: recovered, Stack: debug.Stack()}
		}
	}()
	return stage.Run(ctx, input)
}

// sequence runs nodes one after the other on a local copy of the state and
// returns their combined delta. It stops after a node that halts the run.
func sequence(nodes []Node) Node {
	return func(ctx context.Context, current state.ExecutionState) (state.Delta, error) {
		combined := state.Delta{}
		for _, node := range nodes {
			delta, err := node(ctx, current)
			if err != nil {
				return combined, err
			}
			combined = combined.Then(delta)
			current = current.Apply(delta)
			if current.Halted {
				break
			}
		}
		return combined, nil
	}
}
