package state

import (
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestProperty_HistoryIsAppendOnly(testCase *testing.T) {
	nodeTypes := append([]string{NodeKeywordExtraction, NodeSQLExecution}, SQLProducingNodes...)

	rapid.Check(testCase, func(t *rapid.T) {
		count := rapid.IntRange(0, 40).Draw(t, "count")

		history := History{}
		snapshots := make([]History, 0, count)
		for index := range count {
			nodeType := rapid.SampledFrom(nodeTypes).Draw(t, "nodeType")
			record := NewStepRecord(nodeType, map[string]any{
				"seq":  index,
				SQLKey: fmt.Sprintf("SELECT %d", index),
			}, time.Time{}, 0)
			snapshots = append(snapshots, history)
			history = history.Append(record)
		}

		if history.Len() != count {
			t.Fatalf("expected %d records, got %d", count, history.Len())
		}
		for index, record := range history.All() {
			if seq, _ := record.Get("seq"); seq != index {
				t.Fatalf("record %d carries seq %v", index, seq)
			}
		}

		// Every earlier snapshot still holds exactly its own prefix.
		for length, snapshot := range snapshots {
			if snapshot.Len() != length {
				t.Fatalf("snapshot %d grew to %d records", length, snapshot.Len())
			}
			for index, record := range snapshot.All() {
				if seq, _ := record.Get("seq"); seq != index {
					t.Fatalf("snapshot %d rewritten at %d", length, index)
				}
			}
		}

		// LatestSQL agrees with a reverse scan by hand.
		want := ""
		for index := count - 1; index >= 0; index-- {
			record := history.At(index)
			if IsSQLRecord(record) {
				want = record.String(SQLKey)
				break
			}
		}
		got, _ := history.LatestSQL()
		if got != want {
			t.Fatalf("LatestSQL returned %q, expected %q", got, want)
		}
	})
}
