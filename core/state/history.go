package state

import (
	"encoding/json"
	"iter"
	"slices"
)

// History is the append-only execution log of one run. The zero value is an
// empty history. Append never writes into a backing array another History
// value can observe, so histories can be shared freely between nodes.
type History struct {
	records []StepRecord
}

// NewHistory returns a history holding copies of records, in order.
func NewHistory(records ...StepRecord) History {
	return History{records: slices.Clone(records)}
}

// Append returns a new history with record added at the end. The receiver is
// left unchanged.
func (history History) Append(record StepRecord) History {
	appended := make([]StepRecord, len(history.records), len(history.records)+1)
	copy(appended, history.records)
	return History{records: append(appended, record)}
}

// Len returns the number of records.
func (history History) Len() int {
	return len(history.records)
}

// At returns the record at index in invocation order.
func (history History) At(index int) StepRecord {
	return history.records[index]
}

// All iterates records in invocation order.
func (history History) All() iter.Seq2[int, StepRecord] {
	return slices.All(history.records)
}

// Backward iterates records from the most recent to the oldest.
func (history History) Backward() iter.Seq2[int, StepRecord] {
	return slices.Backward(history.records)
}

// Records returns a copy of the records.
func (history History) Records() []StepRecord {
	return slices.Clone(history.records)
}

// Latest returns the most recent record whose node type is one of nodeTypes.
// Only successful records are considered.
func (history History) Latest(nodeTypes ...string) (StepRecord, bool) {
	return history.LatestMatching(func(record StepRecord) bool {
		return !record.Failed() && slices.Contains(nodeTypes, record.NodeType)
	})
}

// LatestMatching scans the history backwards and returns the first record for
// which match reports true.
func (history History) LatestMatching(match func(StepRecord) bool) (StepRecord, bool) {
	for _, record := range history.Backward() {
		if match(record) {
			return record, true
		}
	}
	return StepRecord{}, false
}

// LatestSQL returns the statement of the most recent SQL-bearing record: a
// successful record produced by one of [SQLProducingNodes] whose SQL payload
// is a non-empty string.
func (history History) LatestSQL() (string, bool) {
	record, found := history.LatestMatching(IsSQLRecord)
	if !found {
		return "", false
	}
	return record.String(SQLKey), true
}

// IsSQLRecord is the predicate [History.LatestSQL] uses.
func IsSQLRecord(record StepRecord) bool {
	return !record.Failed() &&
		slices.Contains(SQLProducingNodes, record.NodeType) &&
		record.String(SQLKey) != ""
}

// LastError returns the most recent failed record.
func (history History) LastError() (StepRecord, bool) {
	return history.LatestMatching(StepRecord.Failed)
}

// ToPlain renders the history as a list of flat objects.
func (history History) ToPlain() []any {
	plain := make([]any, len(history.records))
	for index, record := range history.records {
		plain[index] = record.ToPlain()
	}
	return plain
}

// MarshalJSON implements json.Marshaler. An empty history encodes as [].
func (history History) MarshalJSON() ([]byte, error) {
	return json.Marshal(history.ToPlain())
}
