package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/leofalp/sqlgraph/core/state"
)

// keywordExtraction asks the model for the keywords and entities of the
// question and hint.
type keywordExtraction struct {
	*baseStage
}

func (stage *keywordExtraction) Run(ctx context.Context, input Input) (Output, error) {
	results, err := stage.call(ctx, map[string]any{
		"QUESTION": input.Task.Question,
		"HINT":     input.Task.Evidence,
	})
	if err != nil {
		return Output{}, err
	}

	keywords := make([]string, 0)
	for _, sample := range results[0] {
		keywords = append(keywords, sample.Strings("")...)
	}
	return Output{Fields: map[string]any{keyKeywords: unique(keywords)}}, nil
}

// entityRetrieval looks up stored values similar to the extracted keywords.
type entityRetrieval struct {
	*baseStage
}

func (stage *entityRetrieval) Run(ctx context.Context, input Input) (Output, error) {
	keywords := keywordsOf(input)
	similar := make(map[string]map[string][]string)
	refs := make([]string, 0)
	if len(keywords) == 0 {
		return Output{Fields: map[string]any{keySimilarValues: similar, keyMatchedColumns: refs}}, nil
	}

	matches, err := stage.deps.Retriever.SimilarValues(ctx, input.Task.DBID, keywords, stage.config.TopK)
	if err != nil {
		return Output{}, fmt.Errorf("retrieve similar values: %w", err)
	}

	for _, match := range matches {
		table, exists := input.FullSchema.Table(match.Table)
		if !exists || !input.FullSchema.Contains(table, match.Column) {
			continue
		}
		if similar[table] == nil {
			similar[table] = make(map[string][]string)
		}
		if !slices.Contains(similar[table][match.Column], match.Value) {
			similar[table][match.Column] = append(similar[table][match.Column], match.Value)
		}
		if ref := table + "." + match.Column; !slices.Contains(refs, ref) {
			refs = append(refs, ref)
		}
	}
	slices.Sort(refs)
	return Output{Fields: map[string]any{keySimilarValues: similar, keyMatchedColumns: refs}}, nil
}

// contextRetrieval looks up descriptions of columns related to the keywords.
type contextRetrieval struct {
	*baseStage
}

func (stage *contextRetrieval) Run(ctx context.Context, input Input) (Output, error) {
	keywords := keywordsOf(input)
	described := make(map[string]map[string]string)
	if len(keywords) == 0 {
		return Output{Fields: map[string]any{keyDescriptions: described}}, nil
	}

	descriptions, err := stage.deps.Retriever.ColumnDescriptions(ctx, input.Task.DBID, keywords, stage.config.TopK)
	if err != nil {
		return Output{}, fmt.Errorf("retrieve column descriptions: %w", err)
	}
	for _, description := range descriptions {
		table, exists := input.FullSchema.Table(description.Table)
		if !exists || !input.FullSchema.Contains(table, description.Column) {
			continue
		}
		if described[table] == nil {
			described[table] = make(map[string]string)
		}
		described[table][description.Column] = description.Description
	}
	return Output{Fields: map[string]any{keyDescriptions: described}}, nil
}

// keywordsOf returns the extracted keywords, or the question itself when
// keyword extraction did not run or failed.
func keywordsOf(input Input) []string {
	if record, found := latestSuccess(input.History, state.NodeKeywordExtraction); found {
		return record.Strings(keyKeywords)
	}
	if input.Task.Question == "" {
		return nil
	}
	return []string{input.Task.Question}
}
