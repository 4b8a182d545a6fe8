package inmemory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/leofalp/sqlgraph/providers/database"
	"github.com/leofalp/sqlgraph/providers/observability"
	"github.com/leofalp/sqlgraph/providers/retrieval"
)

// DefaultSampleValues is the number of distinct values IndexDatabase reads per column.
const DefaultSampleValues = 50

// minScore filters out matches sharing nothing meaningful with the keyword.
const minScore = 0.2

type valueEntry struct {
	table  string
	column string
	value  string
	folded string
	tokens []string
}

type descriptionEntry struct {
	table       string
	column      string
	description string
	tokens      []string
}

type corpus struct {
	values       []valueEntry
	descriptions []descriptionEntry
}

// Index is an in-memory retrieval index keyed by database id.
type Index struct {
	mu        sync.RWMutex
	databases map[string]*corpus
}

var _ retrieval.Retriever = (*Index)(nil)

// New returns an empty index.
func New() *Index {
	return &Index{databases: make(map[string]*corpus)}
}

func (index *Index) corpusFor(dbID string) *corpus {
	entries, exists := index.databases[dbID]
	if !exists {
		entries = &corpus{}
		index.databases[dbID] = entries
	}
	return entries
}

// AddValues indexes values stored in table.column of dbID.
func (index *Index) AddValues(dbID, table, column string, values ...string) {
	index.mu.Lock()
	defer index.mu.Unlock()

	entries := index.corpusFor(dbID)
	for _, value := range values {
		if strings.TrimSpace(value) == "" {
			continue
		}
		entries.values = append(entries.values, valueEntry{
			table:  table,
			column: column,
			value:  value,
			folded: strings.ToLower(value),
			tokens: tokenize(value),
		})
	}
}

// Describe indexes a description of table.column in dbID. The column name
// itself is searchable along with the description text.
func (index *Index) Describe(dbID, table, column, description string) {
	index.mu.Lock()
	defer index.mu.Unlock()

	entries := index.corpusFor(dbID)
	entries.descriptions = append(entries.descriptions, descriptionEntry{
		table:       table,
		column:      column,
		description: description,
		tokens:      tokenize(table + " " + column + " " + description),
	})
}

// IndexDatabase samples up to samplesPerColumn distinct values from every
// column of dbID and indexes them. Columns that cannot be sampled are skipped.
// Sampled columns without a description get one derived from the column name.
func (index *Index) IndexDatabase(ctx context.Context, db database.Database, dbID string, samplesPerColumn int) error {
	if samplesPerColumn <= 0 {
		samplesPerColumn = DefaultSampleValues
	}

	schema, err := db.Schema(ctx, dbID)
	if err != nil {
		return fmt.Errorf("index database %q: %w", dbID, err)
	}

	observer := observability.ObserverFromContext(ctx)
	skipped := 0
	for _, table := range schema.Tables() {
		for _, column := range schema[table] {
			if err := ctx.Err(); err != nil {
				return err
			}
			values, sampleErr := db.SampleValues(ctx, dbID, table, column, samplesPerColumn)
			if sampleErr != nil {
				skipped++
				if observer != nil {
					observer.Debug(ctx, "skipping column while indexing",
						observability.String(observability.AttrDBID, dbID),
						observability.String("db.column", table+"."+column),
						observability.Error(sampleErr),
					)
				}
				continue
			}
			index.AddValues(dbID, table, column, values...)
			if !index.hasDescription(dbID, table, column) {
				index.Describe(dbID, table, column, strings.ReplaceAll(column, "_", " "))
			}
		}
	}

	if observer != nil {
		observer.Info(ctx, "database indexed",
			observability.String(observability.AttrDBID, dbID),
			observability.Int("retrieval.values", index.valueCount(dbID)),
			observability.Int("retrieval.skipped_columns", skipped),
		)
	}
	return nil
}

func (index *Index) hasDescription(dbID, table, column string) bool {
	index.mu.RLock()
	defer index.mu.RUnlock()

	entries, exists := index.databases[dbID]
	if !exists {
		return false
	}
	return slices.ContainsFunc(entries.descriptions, func(entry descriptionEntry) bool {
		return entry.table == table && entry.column == column
	})
}

func (index *Index) valueCount(dbID string) int {
	index.mu.RLock()
	defer index.mu.RUnlock()

	if entries, exists := index.databases[dbID]; exists {
		return len(entries.values)
	}
	return 0
}

// SimilarValues implements retrieval.Retriever. Matches are deduplicated by
// table, column and value, keeping the best score.
func (index *Index) SimilarValues(ctx context.Context, dbID string, keywords []string, topK int) ([]retrieval.ValueMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}

	index.mu.RLock()
	defer index.mu.RUnlock()

	entries, exists := index.databases[dbID]
	if !exists {
		return []retrieval.ValueMatch{}, nil
	}

	best := make(map[[3]string]retrieval.ValueMatch)
	for _, keyword := range keywords {
		keywordTokens := tokenize(keyword)
		folded := strings.ToLower(strings.TrimSpace(keyword))
		if folded == "" {
			continue
		}

		matches := make([]retrieval.ValueMatch, 0)
		for _, entry := range entries.values {
			score := overlap(keywordTokens, entry.tokens)
			if strings.Contains(entry.folded, folded) || strings.Contains(folded, entry.folded) {
				score += 0.5
			}
			if entry.folded == folded {
				score += 1
			}
			if score < minScore {
				continue
			}
			matches = append(matches, retrieval.ValueMatch{
				Table:   entry.table,
				Column:  entry.column,
				Value:   entry.value,
				Keyword: keyword,
				Score:   score,
			})
		}
		sortByScore(matches, func(match retrieval.ValueMatch) float64 { return match.Score })

		for _, match := range matches[:min(topK, len(matches))] {
			key := [3]string{match.Table, match.Column, match.Value}
			if current, seen := best[key]; !seen || match.Score > current.Score {
				best[key] = match
			}
		}
	}

	results := make([]retrieval.ValueMatch, 0, len(best))
	for _, match := range best {
		results = append(results, match)
	}
	sortByScore(results, func(match retrieval.ValueMatch) float64 { return match.Score })
	return results, nil
}

// ColumnDescriptions implements retrieval.Retriever.
func (index *Index) ColumnDescriptions(ctx context.Context, dbID string, keywords []string, topK int) ([]retrieval.ColumnDescription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}

	index.mu.RLock()
	defer index.mu.RUnlock()

	entries, exists := index.databases[dbID]
	if !exists {
		return []retrieval.ColumnDescription{}, nil
	}

	best := make(map[[2]string]retrieval.ColumnDescription)
	for _, keyword := range keywords {
		keywordTokens := tokenize(keyword)
		matches := make([]retrieval.ColumnDescription, 0)
		for _, entry := range entries.descriptions {
			score := overlap(keywordTokens, entry.tokens)
			if score < minScore {
				continue
			}
			matches = append(matches, retrieval.ColumnDescription{
				Table:       entry.table,
				Column:      entry.column,
				Description: entry.description,
				Score:       score,
			})
		}
		sortByScore(matches, func(description retrieval.ColumnDescription) float64 { return description.Score })

		for _, match := range matches[:min(topK, len(matches))] {
			key := [2]string{match.Table, match.Column}
			if current, seen := best[key]; !seen || match.Score > current.Score {
				best[key] = match
			}
		}
	}

	results := make([]retrieval.ColumnDescription, 0, len(best))
	for _, description := range best {
		results = append(results, description)
	}
	sortByScore(results, func(description retrieval.ColumnDescription) float64 { return description.Score })
	return results, nil
}

// sortByScore orders items by decreasing score, breaking ties by their
// formatted value so results are deterministic.
func sortByScore[T any](items []T, score func(T) float64) {
	slices.SortStableFunc(items, func(left, right T) int {
		if byScore := cmp.Compare(score(right), score(left)); byScore != 0 {
			return byScore
		}
		return strings.Compare(fmt.Sprint(left), fmt.Sprint(right))
	})
}

// tokenize lowercases text and splits it on anything that is not a letter or
// digit. Underscores split too, so column names tokenize like prose.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	slices.Sort(fields)
	return slices.Compact(fields)
}

// overlap returns the share of keyword tokens found in entry tokens. Both
// slices are sorted and deduplicated.
func overlap(keywordTokens, entryTokens []string) float64 {
	if len(keywordTokens) == 0 || len(entryTokens) == 0 {
		return 0
	}
	shared := 0
	for _, token := range keywordTokens {
		if _, found := slices.BinarySearch(entryTokens, token); found {
			shared++
		}
	}
	return float64(shared) / float64(len(keywordTokens))
}
