package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/leofalp/sqlgraph/core/extract"
	"github.com/leofalp/sqlgraph/core/llm"
	"github.com/leofalp/sqlgraph/core/state"
)

func TestWrap_SuccessAppendsOneRecord(testCase *testing.T) {
	initial := newTestState("How many employees are active?")
	narrowed := state.Schema{"employees": {"id", "active"}}
	rewritten := initial.Task.WithQuestion("How many active employees are there?")

	node := Wrap(StageFunc{StageName: "narrow", Func: func(_ context.Context, input Input) (Output, error) {
		if input.Task.Question != initial.Task.Question {
			testCase.Errorf("Expected projected question %q, got %q", initial.Task.Question, input.Task.Question)
		}
		input.Schema["employees"] = nil
		return Output{Fields: map[string]any{"tables": 1}, Task: &rewritten, Schema: narrowed}, nil
	}})

	delta, err := node(context.Background(), initial)
	if err != nil {
		testCase.Fatalf("Wrap node returned error: %v", err)
	}
	next := initial.Apply(delta)

	if next.History.Len() != 1 {
		testCase.Fatalf("Expected 1 record, got %d", next.History.Len())
	}
	record := next.History.At(0)
	if record.NodeType != "narrow" || record.Failed() {
		testCase.Errorf("Expected successful narrow record, got %+v", record)
	}
	if value, _ := record.Get("tables"); value != 1 {
		testCase.Errorf("Expected payload tables=1, got %v", value)
	}
	if next.Task.Question != rewritten.Question || next.Task.OriginalQuestion != initial.Task.Question {
		testCase.Errorf("Expected rewritten task keeping the original question, got %+v", next.Task)
	}
	if next.TentativeSchema.ColumnCount() != 2 {
		testCase.Errorf("Expected narrowed schema, got %v", next.TentativeSchema)
	}
	if len(initial.TentativeSchema["employees"]) != 4 || initial.History.Len() != 0 {
		testCase.Error("Expected the input state to be left untouched")
	}
}

func TestWrap_Failures(testCase *testing.T) {
	extractionErr := &extract.ExtractionError{Extractor: "select_tables", Err: errors.New("bad json")}

	tests := []struct {
		name     string
		stage    Stage
		opts     []WrapOption
		initial  state.ExecutionState
		wantKind state.ErrorKind
		wantHalt bool
	}{
		{
			name:     "empty schema is a precondition failure",
			stage:    StageFunc{StageName: "table_selection", Func: func(context.Context, Input) (Output, error) { return Output{}, nil }},
			initial:  state.NewExecutionState(state.NewTask("q", "hr", ""), nil),
			wantKind: state.ErrorKindPrecondition,
			wantHalt: true,
		},
		{
			name: "panic is recovered",
			stage: StageFunc{StageName: "revision", Func: func(context.Context, Input) (Output, error) {
				var schema state.Schema
				schema["boom"] = nil
				return Output{}, nil
			}},
			initial:  newTestState("q"),
			wantKind: state.ErrorKindPanic,
			wantHalt: true,
		},
		{
			name: "extraction failure continues under the continue policy",
			stage: StageFunc{StageName: "keyword_extraction", Func: func(context.Context, Input) (Output, error) {
				return Output{}, fmt.Errorf("all samples failed: %w", extractionErr)
			}},
			opts:     []WrapOption{WithFailurePolicy(ContinueOnError)},
			initial:  newTestState("q"),
			wantKind: state.ErrorKindExtraction,
		},
		{
			name: "invocation failure halts",
			stage: StageFunc{StageName: "candidate_generation", Func: func(context.Context, Input) (Output, error) {
				return Output{}, &llm.InvocationError{Step: "candidate_generation", Err: errors.New("connection refused")}
			}},
			initial:  newTestState("q"),
			wantKind: state.ErrorKindInvocation,
			wantHalt: true,
		},
	}

	for _, test := range tests {
		testCase.Run(test.name, func(testCase *testing.T) {
			delta, err := Wrap(test.stage, test.opts...)(context.Background(), test.initial)
			if err != nil {
				testCase.Fatalf("Expected failures to be contained, got %v", err)
			}
			next := test.initial.Apply(delta)
			if next.History.Len() != 1 {
				testCase.Fatalf("Expected exactly one record, got %d", next.History.Len())
			}
			record := next.History.At(0)
			if !record.Failed() || record.ErrorKind != test.wantKind {
				testCase.Errorf("Expected error record of kind %q, got status %q kind %q", test.wantKind, record.Status, record.ErrorKind)
			}
			if record.NodeType != test.stage.Name() || record.Error == "" {
				testCase.Errorf("Expected record for %q with a message, got %+v", test.stage.Name(), record)
			}
			if next.Halted != test.wantHalt {
				testCase.Errorf("Expected halted=%v, got %v", test.wantHalt, next.Halted)
			}
			if test.wantHalt && next.HaltReason == "" {
				testCase.Error("Expected a halt reason")
			}
		})
	}
}

func TestWrap_KeepsFieldsOnError(testCase *testing.T) {
	node := Wrap(StageFunc{StageName: state.NodeSQLExecution, Func: func(context.Context, Input) (Output, error) {
		return Output{Fields: map[string]any{state.SQLKey: "SELECT nope"}}, errors.New("no such column: nope")
	}})

	delta, _ := node(context.Background(), newTestState("q"))
	record := delta.Records[0]
	if record.String(state.SQLKey) != "SELECT nope" {
		testCase.Errorf("Expected SQL kept on the error record, got %v", record.Fields())
	}
	if record.ErrorKind != state.ErrorKindUnknown {
		testCase.Errorf("Expected unknown kind, got %q", record.ErrorKind)
	}
	if _, found := state.NewHistory(record).LatestSQL(); found {
		testCase.Error("Expected a failed record to never count as the latest SQL")
	}
}

func TestWrap_WithoutSchemaCheck(testCase *testing.T) {
	ran := false
	node := Wrap(StageFunc{StageName: state.NodeContextEnhancement, Func: func(context.Context, Input) (Output, error) {
		ran = true
		return Output{}, nil
	}}, WithoutSchemaCheck())

	delta, _ := node(context.Background(), state.NewExecutionState(state.NewTask("q", "hr", ""), nil))
	if !ran || delta.Records[0].Failed() {
		testCase.Error("Expected the stage to run on an empty schema")
	}
}

func TestErrorKind(testCase *testing.T) {
	tests := []struct {
		name string
		err  error
		want state.ErrorKind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "shape mismatch", err: &extract.ShapeMismatchError{Extractor: "revise"}, want: state.ErrorKindShapeMismatch},
		{name: "wrapped precondition", err: fmt.Errorf("agent: %w", &PreconditionError{Node: "revision"}), want: state.ErrorKindPrecondition},
		{name: "deadline", err: context.DeadlineExceeded, want: state.ErrorKindInvocation},
		{name: "plain", err: errors.New("boom"), want: state.ErrorKindUnknown},
	}

	for _, test := range tests {
		testCase.Run(test.name, func(testCase *testing.T) {
			if got := ErrorKind(test.err); got != test.want {
				testCase.Errorf("ErrorKind() = %q, want %q", got, test.want)
			}
		})
	}
}

func TestParseFailurePolicy(testCase *testing.T) {
	for input, want := range map[string]FailurePolicy{"halt": HaltOnError, "continue": ContinueOnError} {
		got, err := ParseFailurePolicy(input)
		if err != nil || got != want || got.String() != input {
			testCase.Errorf("ParseFailurePolicy(%q) = %v, %v", input, got, err)
		}
	}
	if _, err := ParseFailurePolicy("retry"); err == nil {
		testCase.Error("Expected an error for an unknown policy")
	}
}

func TestSequence_StopsAfterHalt(testCase *testing.T) {
	var ran []string
	stage := func(name string, fail bool) Node {
		return Wrap(StageFunc{StageName: name, Func: func(context.Context, Input) (Output, error) {
			ran = append(ran, name)
			if fail {
				return Output{}, errors.New("failed")
			}
			return Output{Fields: map[string]any{"ok": true}}, nil
		}})
	}

	node := sequence([]Node{stage("first", false), stage("second", true), stage("third", false)})
	delta, err := node(context.Background(), newTestState("q"))
	if err != nil {
		testCase.Fatalf("sequence returned error: %v", err)
	}
	if len(ran) != 2 || len(delta.Records) != 2 {
		testCase.Errorf("Expected two stages to run, ran %v with %d records", ran, len(delta.Records))
	}
	if !delta.Halt {
		testCase.Error("Expected the combined delta to halt")
	}
}
