// Package retrieval defines the collaborator the information-retrieval stages
// use to ground a question in actual database content: stored values similar
// to the question's keywords and descriptions of relevant columns.
//
// The pipeline only depends on [Retriever]; the inmemory sub-package provides a keyword
// index suitable for small databases and tests.
package retrieval

import "context"

// DefaultTopK is the number of matches returned when a caller passes zero.
const DefaultTopK = 5

// ValueMatch is a stored database value similar to a keyword.
type ValueMatch struct {
	Table   string  `json:"table"`
	Column  string  `json:"column"`
	Value   string  `json:"value"`
	Keyword string  `json:"keyword"`
	Score   float64 `json:"score"`
}

// Ref returns the "table.column" reference of the match.
func (match ValueMatch) Ref() string {
	return match.Table + "." + match.Column
}

// ColumnDescription documents one column.
type ColumnDescription struct {
	Table       string  `json:"table"`
	Column      string  `json:"column"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// Ref returns the "table.column" reference of the description.
func (description ColumnDescription) Ref() string {
	return description.Table + "." + description.Column
}

// Retriever looks up database content related to a set of keywords. Results
// are ordered by decreasing score.
type Retriever interface {
	// SimilarValues returns up to topK stored values per keyword.
	SimilarValues(ctx context.Context, dbID string, keywords []string, topK int) ([]ValueMatch, error)

	// ColumnDescriptions returns up to topK column descriptions per keyword.
	ColumnDescriptions(ctx context.Context, dbID string, keywords []string, topK int) ([]ColumnDescription, error)
}
