package sqlgraph

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/leofalp/sqlgraph/core/extract"
	"github.com/leofalp/sqlgraph/core/llm"
	"github.com/leofalp/sqlgraph/core/state"
	"github.com/leofalp/sqlgraph/providers/database"
	"github.com/leofalp/sqlgraph/providers/session"
)

const countSQL = "SELECT COUNT(*) FROM employees WHERE active=1"

func candidateReply(sql string) string {
	return fmt.Sprintf(`{"chain_of_thought_reasoning": "count active rows", "SQL": %q}`, sql)
}

// scriptedInvoker replays queued replies per step through the real prompt
// templates and extractors. The last reply of a queue repeats.
type scriptedInvoker struct {
	mu       sync.Mutex
	registry *extract.Registry
	replies  map[string][]string
	failures map[string]error
	steps    []string
}

func newScriptedInvoker() *scriptedInvoker {
	return &scriptedInvoker{
		registry: extract.NewRegistry(),
		replies:  make(map[string][]string),
		failures: make(map[string]error),
	}
}

func (invoker *scriptedInvoker) script(step string, replies ...string) *scriptedInvoker {
	invoker.replies[step] = append(invoker.replies[step], replies...)
	return invoker
}

func (invoker *scriptedInvoker) fail(step string, err error) *scriptedInvoker {
	invoker.failures[step] = err
	return invoker
}

func (invoker *scriptedInvoker) calls(step string) int {
	invoker.mu.Lock()
	defer invoker.mu.Unlock()
	count := 0
	for _, called := range invoker.steps {
		if called == step {
			count++
		}
	}
	return count
}

func (invoker *scriptedInvoker) Call(_ context.Context, call llm.Call) ([][]extract.Result, error) {
	invoker.mu.Lock()
	invoker.steps = append(invoker.steps, call.Step)
	failure := invoker.failures[call.Step]
	queue := invoker.replies[call.Step]
	raw := ""
	if len(queue) > 0 {
		raw = queue[0]
		if len(queue) > 1 {
			invoker.replies[call.Step] = queue[1:]
		}
	}
	invoker.mu.Unlock()

	if failure != nil {
		return nil, &llm.InvocationError{Step: call.Step, Err: failure}
	}
	if len(queue) == 0 {
		return nil, &llm.InvocationError{Step: call.Step, Err: fmt.Errorf("no scripted reply")}
	}
	extractor, err := invoker.registry.Get(call.Extractor)
	if err != nil {
		return nil, &llm.InvocationError{Step: call.Step, Err: err}
	}

	results := make([][]extract.Result, len(call.Requests))
	for index, vars := range call.Requests {
		if _, _, err := call.Template.Render(vars); err != nil {
			return nil, &llm.InvocationError{Step: call.Step, Err: err}
		}
		result, err := extractor.Extract(raw)
		if err != nil {
			return nil, err
		}
		results[index] = []extract.Result{result}
	}
	return results, nil
}

// memoryDatabase serves one database, "hr", with scripted statement results.
type memoryDatabase struct {
	mu       sync.Mutex
	rows     map[string][][]any
	errors   map[string]error
	executed []string
}

func newMemoryDatabase() *memoryDatabase {
	return &memoryDatabase{
		rows:   map[string][][]any{countSQL: {{42}}},
		errors: make(map[string]error),
	}
}

func (memory *memoryDatabase) Databases(context.Context) ([]string, error) {
	return []string{"hr"}, nil
}

func (memory *memoryDatabase) Schema(_ context.Context, dbID string) (state.Schema, error) {
	if dbID != "hr" {
		return nil, fmt.Errorf("%w: %q", database.ErrUnknownDatabase, dbID)
	}
	return state.Schema{
		"employees":   {"id", "name", "active", "department_id"},
		"departments": {"id", "name"},
		"projects":    {"id", "title", "department_id"},
	}, nil
}

func (memory *memoryDatabase) ExecuteSQL(_ context.Context, _ string, statement string) ([][]any, error) {
	memory.mu.Lock()
	defer memory.mu.Unlock()
	memory.executed = append(memory.executed, statement)
	if err := memory.errors[statement]; err != nil {
		return nil, err
	}
	return memory.rows[statement], nil
}

func (memory *memoryDatabase) SampleValues(context.Context, string, string, string, int) ([]string, error) {
	return nil, nil
}

func (memory *memoryDatabase) executions() int {
	memory.mu.Lock()
	defer memory.mu.Unlock()
	return len(memory.executed)
}

// memoryTurnLog keeps logged turns per session. appendErr, when set, fails
// every Append.
type memoryTurnLog struct {
	mu        sync.Mutex
	turns     map[string][]session.LoggedTurn
	appendErr error
}

func newMemoryTurnLog() *memoryTurnLog {
	return &memoryTurnLog{turns: make(map[string][]session.LoggedTurn)}
}

func (log *memoryTurnLog) Append(_ context.Context, sessionID string, turn session.LoggedTurn) error {
	log.mu.Lock()
	defer log.mu.Unlock()
	if log.appendErr != nil {
		return log.appendErr
	}
	log.turns[sessionID] = append(log.turns[sessionID], turn)
	return nil
}

func (log *memoryTurnLog) Turns(_ context.Context, sessionID string) ([]session.LoggedTurn, error) {
	log.mu.Lock()
	defer log.mu.Unlock()
	return slices.Clone(log.turns[sessionID]), nil
}

func (log *memoryTurnLog) Clear(_ context.Context, sessionID string) error {
	log.mu.Lock()
	defer log.mu.Unlock()
	delete(log.turns, sessionID)
	return nil
}

func (log *memoryTurnLog) count(sessionID string) int {
	log.mu.Lock()
	defer log.mu.Unlock()
	return len(log.turns[sessionID])
}
