package pipeline

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/leofalp/sqlgraph/core/extract"
	"github.com/leofalp/sqlgraph/core/state"
)

// Payload keys shared between stages.
const (
	keyKeywords       = "keywords"
	keySimilarValues  = "similar_values"
	keyMatchedColumns = "matched_columns"
	keyDescriptions   = "schema_with_descriptions"
	keyTableNames     = "table_names"
	keyTableColumns   = "table_columns"
	keySelectedSchema = "selected_schema"
	keyCandidates     = "candidates"
	keyResults        = "results"
	keyRowCount       = "row_count"
	keyFailureReason  = "failure_reason"
	keyOriginalQ      = "original_question"
	keyContextReason  = "context_reasoning"
	keyOriginalSQL    = "original_SQL"
)

const (
	maxRowsInPrompt = 50
	noRowsFeedback  = "The query ran but returned no rows."
)

// latestSuccess returns the latest successful record of nodeType.
func latestSuccess(history state.History, nodeType string) (state.StepRecord, bool) {
	return history.LatestMatching(func(record state.StepRecord) bool {
		return record.NodeType == nodeType && !record.Failed()
	})
}

// matchedRefs returns the "table.column" references entity retrieval matched.
func matchedRefs(history state.History) []string {
	record, found := latestSuccess(history, state.NodeEntityRetrieval)
	if !found {
		return nil
	}
	return record.Strings(keyMatchedColumns)
}

// similarValuesText renders the entity retrieval matches for a prompt.
func similarValuesText(history state.History) string {
	record, found := latestSuccess(history, state.NodeEntityRetrieval)
	if !found {
		return ""
	}
	value, _ := record.Get(keySimilarValues)
	tables, _ := value.(map[string]any)

	var builder strings.Builder
	for _, table := range slices.Sorted(maps.Keys(tables)) {
		columns, _ := tables[table].(map[string]any)
		for _, column := range slices.Sorted(maps.Keys(columns)) {
			fmt.Fprintf(&builder, "%s.%s: %s\n", table, column, strings.Join(toStrings(columns[column]), ", "))
		}
	}
	return strings.TrimSuffix(builder.String(), "\n")
}

// columnDescription returns the description context retrieval found for a column.
func columnDescription(history state.History, table, column string) string {
	record, found := latestSuccess(history, state.NodeContextRetrieval)
	if !found {
		return ""
	}
	value, _ := record.Get(keyDescriptions)
	tables, _ := value.(map[string]any)
	columns, _ := tables[table].(map[string]any)
	description, _ := columns[column].(string)
	return description
}

// schemaFromValue converts a plain table to columns object into a Schema.
func schemaFromValue(value any) state.Schema {
	object, _ := value.(map[string]any)
	schema := make(state.Schema, len(object))
	for table, columns := range object {
		schema[table] = toStrings(columns)
	}
	return schema
}

func toStrings(value any) []string {
	switch typed := value.(type) {
	case []string:
		return slices.Clone(typed)
	case []any:
		texts := make([]string, 0, len(typed))
		for _, element := range typed {
			if text := strings.TrimSpace(fmt.Sprint(element)); element != nil && text != "" {
				texts = append(texts, text)
			}
		}
		return texts
	case string:
		return []string{typed}
	default:
		return nil
	}
}

// rowsFromValue converts plain rows back into [][]any.
func rowsFromValue(value any) [][]any {
	list, _ := value.([]any)
	rows := make([][]any, 0, len(list))
	for _, element := range list {
		row, _ := element.([]any)
		rows = append(rows, row)
	}
	return rows
}

// formatRows renders rows for a prompt, truncated to maxRowsInPrompt.
func formatRows(rows [][]any) string {
	if len(rows) == 0 {
		return "[]"
	}
	var builder strings.Builder
	for index, row := range rows {
		if index == maxRowsInPrompt {
			fmt.Fprintf(&builder, "... %d more rows\n", len(rows)-maxRowsInPrompt)
			break
		}
		values := make([]string, len(row))
		for column, value := range row {
			values[column] = fmt.Sprint(value)
		}
		builder.WriteString("(" + strings.Join(values, ", ") + ")\n")
	}
	return strings.TrimSuffix(builder.String(), "\n")
}

// unique returns values without duplicates or blanks, keeping first occurrences.
func unique(values []string) []string {
	seen := make(map[string]bool, len(values))
	kept := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		kept = append(kept, value)
	}
	return kept
}

// uniqueFold is unique with names compared case-insensitively, as SQL
// identifiers are. The first spelling wins.
func uniqueFold(values []string) []string {
	kept := make([]string, 0, len(values))
	for _, value := range unique(values) {
		if !slices.ContainsFunc(kept, func(seen string) bool { return strings.EqualFold(seen, value) }) {
			kept = append(kept, value)
		}
	}
	return kept
}

// majority returns the values named by more than half of the samples, in
// order of first appearance. When no value reaches a majority the first
// sample's values are returned.
func majority(samples [][]string) []string {
	if len(samples) == 0 {
		return nil
	}
	votes := make(map[string]int)
	order := make([]string, 0)
	for _, sample := range samples {
		for _, value := range unique(sample) {
			key := strings.ToLower(value)
			if votes[key] == 0 {
				order = append(order, value)
			}
			votes[key]++
		}
	}

	elected := make([]string, 0, len(order))
	for _, value := range order {
		if votes[strings.ToLower(value)]*2 > len(samples) {
			elected = append(elected, value)
		}
	}
	if len(elected) == 0 {
		return unique(samples[0])
	}
	return elected
}

// first returns the first sample of the first request.
func first(results [][]extract.Result) (extract.Result, bool) {
	if len(results) == 0 || len(results[0]) == 0 {
		return extract.Result{}, false
	}
	return results[0][0], true
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
