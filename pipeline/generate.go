package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/leofalp/sqlgraph/core/extract"
	"github.com/leofalp/sqlgraph/core/state"
)

// candidateGeneration writes SQL for the question over the tentative schema.
// Every surviving sample is a candidate; the first one is the record's SQL.
type candidateGeneration struct {
	*baseStage
}

func (stage *candidateGeneration) Run(ctx context.Context, input Input) (Output, error) {
	results, err := stage.call(ctx, map[string]any{
		"DATABASE_SCHEMA": input.Schema.String(),
		"SIMILAR_VALUES":  similarValuesText(input.History),
		"QUESTION":        input.Task.Question,
		"HINT":            input.Task.Evidence,
	})
	if err != nil {
		return Output{}, err
	}

	candidates := make([]string, 0, len(results[0]))
	for _, sample := range results[0] {
		candidates = append(candidates, sample.String(state.SQLKey))
	}
	candidates = unique(candidates)
	if len(candidates) == 0 {
		return Output{}, errors.New("no sample produced a SQL query")
	}

	best, _ := first(results)
	fields := map[string]any{
		state.SQLKey:  candidates[0],
		keyCandidates: candidates,
	}
	if reasoning := best.String(extract.KeyReasoning); reasoning != "" {
		fields[extract.KeyReasoning] = reasoning
	}
	if plan := best.String(extract.PlanKey); plan != "" {
		fields[extract.PlanKey] = plan
	}
	return Output{Fields: fields}, nil
}

// revision executes the latest SQL and, when it fails or returns no rows,
// asks the model to fix it. It repeats up to MaxAttempts times.
type revision struct {
	*baseStage
}

func (stage *revision) Run(ctx context.Context, input Input) (Output, error) {
	original, found := input.History.LatestSQL()
	if !found {
		return Output{}, &PreconditionError{Node: stage.name, Reason: "no SQL to revise"}
	}

	sql := original
	feedback := make([]string, 0)
	attempts := max(stage.config.MaxAttempts, 1)
	for range attempts {
		rows, execErr := stage.deps.Database.ExecuteSQL(ctx, input.Task.DBID, sql)
		if execErr == nil && len(rows) > 0 {
			break
		}
		result := noRowsFeedback
		if execErr != nil {
			result = "Error: " + execErr.Error()
		}
		feedback = append(feedback, result)

		results, err := stage.call(ctx, map[string]any{
			"DATABASE_SCHEMA":  input.Schema.String(),
			"QUESTION":         input.Task.Question,
			"HINT":             input.Task.Evidence,
			"SQL":              sql,
			"EXECUTION_RESULT": result,
		})
		if err != nil {
			return Output{Fields: map[string]any{"feedback": feedback}}, err
		}

		revised, _ := first(results)
		fixed := firstNonEmpty(revised.String(extract.KeyRevisedSQL), revised.String(extract.KeyRefinedSQL), revised.String(state.SQLKey))
		if fixed == "" || fixed == sql {
			break
		}
		sql = fixed
	}

	return Output{Fields: map[string]any{
		state.SQLKey:   sql,
		keyOriginalSQL: original,
		"revised":      sql != original,
		"feedback":     feedback,
	}}, nil
}

// unitTestGeneration asks the model for natural-language tests that tell the
// candidates apart.
type unitTestGeneration struct {
	*baseStage
}

func (stage *unitTestGeneration) Run(ctx context.Context, input Input) (Output, error) {
	candidates := candidatesOf(input.History)
	if len(candidates) == 0 {
		return Output{}, &PreconditionError{Node: stage.name, Reason: "no candidate SQL"}
	}

	var listing strings.Builder
	for index, candidate := range candidates {
		fmt.Fprintf(&listing, "Candidate %d:\n%s\n", index+1, candidate)
	}
	limit := max(stage.config.TopK, 1)

	results, err := stage.call(ctx, map[string]any{
		"DATABASE_SCHEMA":   input.Schema.String(),
		"QUESTION":          input.Task.Question,
		"HINT":              input.Task.Evidence,
		"CANDIDATE_QUERIES": strings.TrimSuffix(listing.String(), "\n"),
		"UNIT_TEST_CAP":     limit,
	})
	if err != nil {
		return Output{}, err
	}

	tests := make([]string, 0)
	for _, sample := range results[0] {
		tests = append(tests, sample.Strings(extract.KeyUnitTests)...)
	}
	tests = unique(tests)
	if len(tests) > limit {
		tests = tests[:limit]
	}
	if len(tests) == 0 {
		return Output{}, errors.New("no unit tests were generated")
	}
	return Output{Fields: map[string]any{
		extract.KeyUnitTests: tests,
		keyCandidates:        candidates,
	}}, nil
}

// evaluation runs every candidate, asks the model which unit tests it passes
// and keeps the candidate passing the most. Ties go to the earlier candidate.
type evaluation struct {
	*baseStage
}

func (stage *evaluation) Run(ctx context.Context, input Input) (Output, error) {
	record, found := latestSuccess(input.History, state.NodeUnitTestGeneration)
	if !found {
		return Output{}, &PreconditionError{Node: stage.name, Reason: "no unit tests"}
	}
	tests := record.Strings(extract.KeyUnitTests)
	candidates := candidatesOf(input.History)
	if len(candidates) == 0 {
		candidates = record.Strings(keyCandidates)
	}
	if len(tests) == 0 || len(candidates) == 0 {
		return Output{}, &PreconditionError{Node: stage.name, Reason: "no unit tests or candidates"}
	}

	requests := make([]map[string]any, len(candidates))
	for index, candidate := range candidates {
		var result string
		if rows, err := stage.deps.Database.ExecuteSQL(ctx, input.Task.DBID, candidate); err != nil {
			result = "Error: " + err.Error()
		} else {
			result = formatRows(rows)
		}
		requests[index] = map[string]any{
			"DATABASE_SCHEMA":  input.Schema.String(),
			"QUESTION":         input.Task.Question,
			"HINT":             input.Task.Evidence,
			"SQL":              candidate,
			"EXECUTION_RESULT": result,
			"UNIT_TESTS":       tests,
		}
	}

	results, err := stage.call(ctx, requests...)
	if err != nil {
		return Output{}, err
	}

	scores := make([]int, len(candidates))
	bestIndex := 0
	for index, samples := range results {
		for _, sample := range samples {
			for _, score := range sample.Strings(extract.KeyScores) {
				if score == "1" {
					scores[index]++
				}
			}
		}
		if scores[index] > scores[bestIndex] {
			bestIndex = index
		}
	}

	return Output{Fields: map[string]any{
		state.SQLKey:      candidates[bestIndex],
		keyCandidates:     candidates,
		extract.KeyScores: scores,
	}}, nil
}

// candidatesOf returns the candidates of the latest candidate generation with
// every later successful revision swapped in for the query it revised, or the
// latest SQL alone.
func candidatesOf(history state.History) []string {
	var candidates []string
	for _, record := range history.All() {
		if record.Failed() {
			continue
		}
		switch record.NodeType {
		case state.NodeCandidateGeneration:
			candidates = record.Strings(keyCandidates)
		case state.NodeRevision:
			if len(candidates) > 0 {
				candidates = applyRevision(candidates, record)
			}
		}
	}
	if len(candidates) > 0 {
		return candidates
	}
	if sql, found := history.LatestSQL(); found {
		return []string{sql}
	}
	return nil
}

// applyRevision replaces the candidate a revision started from with its fixed
// query. A revision of a query outside the list is appended.
func applyRevision(candidates []string, record state.StepRecord) []string {
	fixed, original := record.String(state.SQLKey), record.String(keyOriginalSQL)
	if fixed == "" || fixed == original {
		return candidates
	}
	revised := slices.Clone(candidates)
	if index := slices.Index(revised, original); index >= 0 {
		revised[index] = fixed
	} else {
		revised = append(revised, fixed)
	}
	return unique(revised)
}
