package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leofalp/sqlgraph/core/extract"
	"github.com/leofalp/sqlgraph/core/llm"
	"github.com/leofalp/sqlgraph/core/state"
	"github.com/leofalp/sqlgraph/providers/retrieval"
)

// replyFunc returns the raw model text for one sample of one request.
type replyFunc func(vars map[string]any, sample int) string

func constant(raw string) replyFunc {
	return func(map[string]any, int) string { return raw }
}

// fakeInvoker renders the real prompt templates and runs the real extractors
// over scripted replies, keyed by step.
type fakeInvoker struct {
	mu       sync.Mutex
	registry *extract.Registry
	replies  map[string]replyFunc
	failures map[string]error
	calls    []llm.Call
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{
		registry: extract.NewRegistry(),
		replies:  make(map[string]replyFunc),
		failures: make(map[string]error),
	}
}

func (fake *fakeInvoker) reply(step string, reply replyFunc) *fakeInvoker {
	fake.replies[step] = reply
	return fake
}

func (fake *fakeInvoker) fail(step string, err error) *fakeInvoker {
	fake.failures[step] = err
	return fake
}

func (fake *fakeInvoker) Call(ctx context.Context, call llm.Call) ([][]extract.Result, error) {
	fake.mu.Lock()
	fake.calls = append(fake.calls, call)
	reply := fake.replies[call.Step]
	failure := fake.failures[call.Step]
	fake.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &llm.InvocationError{Step: call.Step, Err: err}
	}
	if failure != nil {
		return nil, failure
	}
	if reply == nil {
		return nil, &llm.InvocationError{Step: call.Step, Err: fmt.Errorf("no scripted reply")}
	}
	extractor, err := fake.registry.Get(call.Extractor)
	if err != nil {
		return nil, &llm.InvocationError{Step: call.Step, Err: err}
	}

	results := make([][]extract.Result, len(call.Requests))
	for index, vars := range call.Requests {
		if _, _, err := call.Template.Render(vars); err != nil {
			return nil, &llm.InvocationError{Step: call.Step, Err: err}
		}
		var firstErr error
		for sample := range max(call.SamplingCount, 1) {
			result, err := extractor.Extract(reply(vars, sample))
			if err != nil {
				firstErr = err
				continue
			}
			results[index] = append(results[index], result)
		}
		if len(results[index]) == 0 {
			return nil, firstErr
		}
	}
	return results, nil
}

func (fake *fakeInvoker) steps() []string {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	steps := make([]string, len(fake.calls))
	for index, call := range fake.calls {
		steps[index] = call.Step
	}
	return steps
}

func (fake *fakeInvoker) callsFor(step string) []llm.Call {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	var calls []llm.Call
	for _, call := range fake.calls {
		if call.Step == step {
			calls = append(calls, call)
		}
	}
	return calls
}

// fakeDatabase answers scripted statements.
type fakeDatabase struct {
	mu       sync.Mutex
	schema   state.Schema
	rows     map[string][][]any
	errors   map[string]error
	executed []string
}

func newFakeDatabase() *fakeDatabase {
	return &fakeDatabase{
		schema: state.Schema{
			"employees":   {"id", "name", "active", "department_id"},
			"departments": {"id", "name"},
			"projects":    {"id", "title"},
		},
		rows:   make(map[string][][]any),
		errors: make(map[string]error),
	}
}

func (fake *fakeDatabase) Databases(context.Context) ([]string, error) {
	return []string{"hr"}, nil
}

func (fake *fakeDatabase) Schema(context.Context, string) (state.Schema, error) {
	return fake.schema.Clone(), nil
}

func (fake *fakeDatabase) ExecuteSQL(_ context.Context, _ string, statement string) ([][]any, error) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	fake.executed = append(fake.executed, statement)
	if err := fake.errors[statement]; err != nil {
		return nil, err
	}
	return fake.rows[statement], nil
}

func (fake *fakeDatabase) SampleValues(context.Context, string, string, string, int) ([]string, error) {
	return nil, nil
}

func (fake *fakeDatabase) executedCount(statement string) int {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	count := 0
	for _, executed := range fake.executed {
		if executed == statement {
			count++
		}
	}
	return count
}

// fakeRetriever returns fixed matches.
type fakeRetriever struct {
	values       []retrieval.ValueMatch
	descriptions []retrieval.ColumnDescription
	err          error
}

func (fake *fakeRetriever) SimilarValues(context.Context, string, []string, int) ([]retrieval.ValueMatch, error) {
	return fake.values, fake.err
}

func (fake *fakeRetriever) ColumnDescriptions(context.Context, string, []string, int) ([]retrieval.ColumnDescription, error) {
	return fake.descriptions, fake.err
}

const countSQL = "SELECT COUNT(*) FROM employees WHERE active=1"

func candidateReply(sql string) string {
	return fmt.Sprintf(`{"chain_of_thought_reasoning": "count active rows", "SQL": %q}`, sql)
}

func newTestState(question string) state.ExecutionState {
	return state.NewExecutionState(state.NewTask(question, "hr", ""), newFakeDatabase().schema)
}

// runStageNode builds the named stage and runs it once on current.
func runStageNode(testCase *testing.T, name string, config Config, deps Deps, current state.ExecutionState) state.ExecutionState {
	testCase.Helper()
	node, err := NewStage(name, config, deps)
	if err != nil {
		testCase.Fatalf("NewStage(%q) error = %v", name, err)
	}
	delta, err := node(context.Background(), current)
	if err != nil {
		testCase.Fatalf("node %q returned error %v", name, err)
	}
	return current.Apply(delta)
}

func withRecord(current state.ExecutionState, nodeType string, fields map[string]any) state.ExecutionState {
	return current.Apply(state.Delta{Records: []state.StepRecord{state.NewStepRecord(nodeType, fields, time.Now(), 0)}})
}
