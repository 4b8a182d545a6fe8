package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/leofalp/sqlgraph/core/extract"
	"github.com/leofalp/sqlgraph/core/llm"
	"github.com/leofalp/sqlgraph/core/state"
)

// Apologies recorded by response generation when it cannot answer.
const (
	ApologyNoSQL     = "Sorry, I could not produce a SQL query for this question."
	ApologyExecution = "Sorry, the query could not be executed, so I cannot answer this question."
	ApologyResponse  = "Sorry, I could not put the query results into words."
)

// sqlExecution runs the latest SQL and attaches the rows to the task. A
// database error keeps the SQL in the record so callers can show it.
type sqlExecution struct {
	*baseStage
}

func (stage *sqlExecution) Run(ctx context.Context, input Input) (Output, error) {
	sql, found := input.History.LatestSQL()
	if !found {
		return Output{}, &PreconditionError{Node: stage.name, Reason: "no SQL to execute"}
	}

	rows, err := stage.deps.Database.ExecuteSQL(ctx, input.Task.DBID, sql)
	if err != nil {
		return Output{Fields: map[string]any{state.SQLKey: sql}}, &llm.InvocationError{Step: stage.name, Err: err}
	}

	task := input.Task.WithResults(rows)
	return Output{Fields: executionFields(sql, rows), Task: &task}, nil
}

func executionFields(sql string, rows [][]any) map[string]any {
	return map[string]any{
		state.SQLKey: sql,
		keyResults:   rows,
		keyRowCount:  len(rows),
	}
}

// ExecutionRecord builds the sql_execution record of an execution that ran
// outside the graph, shaped like the one the stage writes.
func ExecutionRecord(sql string, rows [][]any, err error, startedAt time.Time) state.StepRecord {
	duration := time.Since(startedAt)
	if err != nil {
		return state.NewErrorRecord(state.NodeSQLExecution, state.ErrorKindInvocation, err, map[string]any{state.SQLKey: sql}, startedAt, duration)
	}
	return state.NewStepRecord(state.NodeSQLExecution, executionFields(sql, rows), startedAt, duration)
}

// ExecutedRows returns the rows of the latest successful execution of sql.
func ExecutedRows(history state.History, sql string) ([][]any, bool) {
	record, found := history.LatestMatching(func(record state.StepRecord) bool {
		return record.NodeType == state.NodeSQLExecution && !record.Failed() && record.String(state.SQLKey) == sql
	})
	if !found {
		return nil, false
	}
	value, _ := record.Get(keyResults)
	return rowsFromValue(value), true
}

// responseGeneration explains the results of the final SQL. It re-derives
// the SQL from the history and never fails: every problem turns into an
// apology.
type responseGeneration struct {
	*baseStage
}

func (stage *responseGeneration) Run(ctx context.Context, input Input) (Output, error) {
	sql, found := input.History.LatestSQL()
	if !found {
		return apology(ApologyNoSQL, "no SQL query found in the execution history"), nil
	}

	rows, executed := ExecutedRows(input.History, sql)
	if !executed {
		var err error
		rows, err = stage.deps.Database.ExecuteSQL(ctx, input.Task.DBID, sql)
		if err != nil {
			return apology(ApologyExecution, fmt.Sprintf("execute SQL: %v", err)), nil
		}
	}

	results, err := stage.call(ctx, map[string]any{
		"QUESTION": input.Task.Question,
		"SQL":      sql,
		"RESULTS":  formatRows(rows),
	})
	if err != nil {
		return apology(ApologyResponse, fmt.Sprintf("generate response: %v", err)), nil
	}

	result, _ := first(results)
	return Output{Fields: map[string]any{
		extract.KeyResponse:         result.String(extract.KeyResponse),
		extract.KeyResponseRational: result.String(extract.KeyResponseRational),
	}}, nil
}

func apology(response, reason string) Output {
	return Output{Fields: map[string]any{
		extract.KeyResponse:         response,
		extract.KeyResponseRational: reason,
		keyFailureReason:            reason,
	}}
}
