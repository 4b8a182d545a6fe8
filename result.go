package sqlgraph

import (
	"github.com/leofalp/sqlgraph/core/state"
)

// Result is the outcome of one run or chat turn. Partial progress is kept on
// failure: SQLQuery and ExecutionHistory are filled whenever available.
type Result struct {
	TaskID           string           `json:"task_id"`
	Question         string           `json:"question"`
	SQLQuery         string           `json:"sql_query,omitempty"`
	Results          [][]any          `json:"results"`
	Response         string           `json:"response,omitempty"`
	Status           state.StepStatus `json:"status"`
	Error            string           `json:"error,omitempty"`
	ExecutionHistory state.History    `json:"execution_history"`
}

// Succeeded reports whether the run produced and executed a SQL query.
func (result *Result) Succeeded() bool {
	return result != nil && result.Status == state.StatusSuccess
}

// ToPlain renders the result as a plain object.
func (result *Result) ToPlain() map[string]any {
	plain := map[string]any{
		"task_id":           result.TaskID,
		"question":          result.Question,
		"sql_query":         result.SQLQuery,
		"results":           state.Plain(result.Results),
		"response":          result.Response,
		"status":            string(result.Status),
		"execution_history": result.ExecutionHistory.ToPlain(),
	}
	if result.Error != "" {
		plain["error"] = result.Error
	}
	return plain
}
