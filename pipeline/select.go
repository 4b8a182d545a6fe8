package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/leofalp/sqlgraph/core/state"
)

// columnFiltering asks, one request per column, whether a column may be
// relevant and drops the rest from the tentative schema. Columns matched by
// entity retrieval are always kept.
type columnFiltering struct {
	*baseStage
}

func (stage *columnFiltering) Run(ctx context.Context, input Input) (Output, error) {
	type columnRef struct{ table, column string }

	refs := make([]columnRef, 0, input.Schema.ColumnCount())
	requests := make([]map[string]any, 0, input.Schema.ColumnCount())
	for _, table := range input.Schema.Tables() {
		for _, column := range input.Schema[table] {
			refs = append(refs, columnRef{table: table, column: column})
			requests = append(requests, map[string]any{
				"COLUMN_PROFILE": columnProfile(input, table, column),
				"QUESTION":       input.Task.Question,
				"HINT":           input.Task.Evidence,
			})
		}
	}

	results, err := stage.call(ctx, requests...)
	if err != nil {
		return Output{}, err
	}

	selection := make(map[string][]string)
	for index, samples := range results {
		if len(samples) > 0 && isRelevant(samples[0].String("is_column_information_relevant")) {
			ref := refs[index]
			selection[ref.table] = append(selection[ref.table], ref.column)
		}
	}

	filtered := input.Schema.Narrow(selection).Restore(input.FullSchema, matchedRefs(input.History))
	if filtered.Empty() {
		filtered = input.Schema
	}
	return Output{
		Fields: map[string]any{
			keySelectedSchema: filtered,
			"filtered_out":    input.Schema.ColumnCount() - filtered.ColumnCount(),
		},
		Schema: filtered,
	}, nil
}

func columnProfile(input Input, table, column string) string {
	profile := "Table: " + table + "\nColumn: " + column
	if description := columnDescription(input.History, table, column); description != "" {
		profile += "\nDescription: " + description
	}
	return profile
}

func isRelevant(answer string) bool {
	answer = strings.ToLower(strings.TrimSpace(answer))
	return strings.HasPrefix(answer, "y") || answer == "true"
}

// tableSelection narrows the tentative schema to the tables the samples
// agree on, plus the tables of entity matches.
type tableSelection struct {
	*baseStage
}

func (stage *tableSelection) Run(ctx context.Context, input Input) (Output, error) {
	if stage.config.Mode == ModePassThrough {
		return Output{Fields: map[string]any{keyTableNames: input.Schema.Tables()}}, nil
	}

	results, err := stage.call(ctx, map[string]any{
		"DATABASE_SCHEMA": input.Schema.String(),
		"QUESTION":        input.Task.Question,
		"HINT":            input.Task.Evidence,
	})
	if err != nil {
		return Output{}, err
	}

	votes := make([][]string, 0, len(results[0]))
	for _, sample := range results[0] {
		votes = append(votes, sample.Strings(keyTableNames))
	}
	tables := majority(votes)

	selected := input.Schema.NarrowTables(tables).Restore(input.FullSchema, matchedRefs(input.History))
	if selected.Empty() {
		return Output{Fields: map[string]any{keyTableNames: tables}},
			fmt.Errorf("none of the selected tables %v exist in the schema", tables)
	}
	return Output{
		Fields: map[string]any{
			keyTableNames:     tables,
			keySelectedSchema: selected,
		},
		Schema: selected,
	}, nil
}

// columnSelection narrows the tentative schema to the columns the model
// chose, plus the columns of entity matches.
type columnSelection struct {
	*baseStage
}

func (stage *columnSelection) Run(ctx context.Context, input Input) (Output, error) {
	if stage.config.Mode == ModePassThrough {
		return Output{Fields: map[string]any{keySelectedSchema: input.Schema}}, nil
	}

	results, err := stage.call(ctx, map[string]any{
		"DATABASE_SCHEMA": input.Schema.String(),
		"QUESTION":        input.Task.Question,
		"HINT":            input.Task.Evidence,
	})
	if err != nil {
		return Output{}, err
	}

	selection := make(map[string][]string)
	for _, sample := range results[0] {
		object, _ := sample.Map()
		for table, columns := range schemaFromValue(object[keyTableColumns]) {
			if stored, exists := input.Schema.Table(table); exists {
				table = stored
			}
			selection[table] = uniqueFold(append(selection[table], columns...))
		}
	}

	selected := input.Schema.Narrow(selection).Restore(input.FullSchema, matchedRefs(input.History))
	if selected.Empty() {
		return Output{Fields: map[string]any{keyTableColumns: selection}},
			fmt.Errorf("none of the selected columns exist in the schema")
	}
	return Output{
		Fields: map[string]any{
			keyTableColumns:   selection,
			keySelectedSchema: selected,
		},
		Schema: selected,
	}, nil
}

// SelectedSchema returns the schema the latest successful selection stage
// settled on.
func SelectedSchema(history state.History) (state.Schema, bool) {
	record, found := history.LatestMatching(func(record state.StepRecord) bool {
		if record.Failed() {
			return false
		}
		_, has := record.Get(keySelectedSchema)
		return has && (record.NodeType == state.NodeTableSelection || record.NodeType == state.NodeColumnSelection)
	})
	if !found {
		return nil, false
	}
	value, _ := record.Get(keySelectedSchema)
	return schemaFromValue(value), true
}
