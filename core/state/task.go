package state

import (
	"slices"

	"github.com/google/uuid"
)

// Task is one user request. It is owned by exactly one pipeline run; chat
// sessions create a fresh Task per turn.
type Task struct {
	// ID uniquely identifies the request across logs and histories.
	ID string `json:"id"`

	// Question is the working question. Context enhancement may rewrite it.
	Question string `json:"question"`

	// OriginalQuestion is the question exactly as the user asked it.
	OriginalQuestion string `json:"original_question"`

	// Evidence is optional hint text supplied with the question.
	Evidence string `json:"evidence,omitempty"`

	// DBID names the target database.
	DBID string `json:"db_id"`

	// QueryResults holds the rows of the last executed statement, if any.
	QueryResults [][]any `json:"query_results,omitempty"`
}

// NewTask creates a task with a fresh identifier. The question is recorded as
// both the working and the original question.
func NewTask(question, dbID, evidence string) Task {
	return Task{
		ID:               uuid.NewString(),
		Question:         question,
		OriginalQuestion: question,
		Evidence:         evidence,
		DBID:             dbID,
	}
}

// WithQuestion returns a copy of the task whose working question is replaced.
// The original question is kept for audit.
func (task Task) WithQuestion(question string) Task {
	updated := task.Clone()
	if updated.OriginalQuestion == "" {
		updated.OriginalQuestion = task.Question
	}
	updated.Question = question
	return updated
}

// WithResults returns a copy of the task carrying rows as its query results.
func (task Task) WithResults(rows [][]any) Task {
	updated := task.Clone()
	updated.QueryResults = cloneRows(rows)
	return updated
}

// Clone returns a deep copy of the task.
func (task Task) Clone() Task {
	task.QueryResults = cloneRows(task.QueryResults)
	return task
}

func cloneRows(rows [][]any) [][]any {
	if rows == nil {
		return nil
	}
	cloned := make([][]any, len(rows))
	for index, row := range rows {
		cloned[index] = slices.Clone(row)
	}
	return cloned
}
