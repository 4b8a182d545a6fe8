package state

import (
	"encoding/json"
	"errors"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"
)

func sqlRecord(nodeType, sql string) StepRecord {
	return NewStepRecord(nodeType, map[string]any{SQLKey: sql}, time.Time{}, 0)
}

func TestHistory_AppendPreservesOrder(testCase *testing.T) {
	history := History{}
	nodeTypes := []string{NodeKeywordExtraction, NodeTableSelection, NodeCandidateGeneration, NodeRevision}
	for _, nodeType := range nodeTypes {
		history = history.Append(NewStepRecord(nodeType, nil, time.Time{}, 0))
	}

	if history.Len() != len(nodeTypes) {
		testCase.Fatalf("expected %d records, got %d", len(nodeTypes), history.Len())
	}
	for index, record := range history.All() {
		if record.NodeType != nodeTypes[index] {
			testCase.Errorf("record %d: expected %q, got %q", index, nodeTypes[index], record.NodeType)
		}
	}
}

func TestHistory_CopyOnAppend(testCase *testing.T) {
	base := History{}.Append(sqlRecord(NodeCandidateGeneration, "SELECT 1"))

	// Two branches appending to the same base must not observe each other.
	left := base.Append(sqlRecord(NodeRevision, "SELECT 2"))
	right := base.Append(sqlRecord(NodeRevision, "SELECT 3"))

	if base.Len() != 1 {
		testCase.Errorf("expected base to keep 1 record, got %d", base.Len())
	}
	if got := left.At(1).String(SQLKey); got != "SELECT 2" {
		testCase.Errorf("left branch: expected SELECT 2, got %q", got)
	}
	if got := right.At(1).String(SQLKey); got != "SELECT 3" {
		testCase.Errorf("right branch: expected SELECT 3, got %q", got)
	}

	records := left.Records()
	records[0] = sqlRecord(NodeEvaluation, "DROP TABLE x")
	if left.At(0).NodeType != NodeCandidateGeneration {
		testCase.Error("mutating Records() output changed the history")
	}
}

func TestHistory_LatestPrefersFreshEntry(testCase *testing.T) {
	history := NewHistory(
		sqlRecord(NodeCandidateGeneration, "SELECT stale"),
		sqlRecord(NodeRevision, "SELECT revised_once"),
		NewStepRecord(NodeUnitTestGeneration, map[string]any{"unit_tests": []string{"t"}}, time.Time{}, 0),
		sqlRecord(NodeRevision, "SELECT revised_twice"),
		NewStepRecord(NodeSQLExecution, map[string]any{SQLKey: "SELECT executed"}, time.Time{}, 0),
	)

	record, found := history.Latest(NodeRevision)
	if !found {
		testCase.Fatal("expected a revision record")
	}
	if got := record.String(SQLKey); got != "SELECT revised_twice" {
		testCase.Errorf("expected fresh revision, got %q", got)
	}

	sql, found := history.LatestSQL()
	if !found || sql != "SELECT revised_twice" {
		testCase.Errorf("expected LatestSQL to skip sql_execution and return the fresh revision, got %q (%v)", sql, found)
	}

	if _, found := history.Latest(NodeEvaluation); found {
		testCase.Error("expected no evaluation record")
	}
}

func TestHistory_LatestSQLSkipsFailuresAndEmptySQL(testCase *testing.T) {
	tests := []struct {
		name    string
		records []StepRecord
		wantSQL string
		wantOK  bool
	}{
		{
			name:    "empty history",
			records: nil,
		},
		{
			name: "failed revision keeps earlier candidate",
			records: []StepRecord{
				sqlRecord(NodeCandidateGeneration, "SELECT 1"),
				NewErrorRecord(NodeRevision, ErrorKindInvocation, errors.New("timeout"), map[string]any{SQLKey: "SELECT broken"}, time.Time{}, 0),
			},
			wantSQL: "SELECT 1",
			wantOK:  true,
		},
		{
			name: "empty SQL ignored",
			records: []StepRecord{
				sqlRecord(NodeCandidateGeneration, "SELECT 1"),
				sqlRecord(NodeEvaluation, ""),
			},
			wantSQL: "SELECT 1",
			wantOK:  true,
		},
		{
			name: "evaluation wins when latest",
			records: []StepRecord{
				sqlRecord(NodeRevision, "SELECT 1"),
				sqlRecord(NodeEvaluation, "SELECT best"),
			},
			wantSQL: "SELECT best",
			wantOK:  true,
		},
	}

	for _, tt := range tests {
		testCase.Run(tt.name, func(testCase *testing.T) {
			sql, ok := NewHistory(tt.records...).LatestSQL()
			if ok != tt.wantOK || sql != tt.wantSQL {
				testCase.Errorf("expected (%q, %v), got (%q, %v)", tt.wantSQL, tt.wantOK, sql, ok)
			}
		})
	}
}

func TestStepRecord_PlainSerialization(testCase *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	record := NewErrorRecord(NodeSQLExecution, ErrorKindInvocation, errors.New("no such table"), map[string]any{
		SQLKey:      "SELECT * FROM missing",
		"rows":      [][]any{{int64(1), []byte("a")}},
		"when":      started,
		"custom":    payload{Name: "x"},
		"pointer":   &payload{Name: "y"},
		"node_type": "spoofed",
	}, started, 1500*time.Millisecond)

	plain := record.ToPlain()
	if plain[FieldNodeType] != NodeSQLExecution {
		testCase.Errorf("metadata must win over payload keys, got %v", plain[FieldNodeType])
	}
	if plain[FieldStatus] != "error" || plain[FieldErrorKind] != "invocation" {
		testCase.Errorf("unexpected status fields: %v / %v", plain[FieldStatus], plain[FieldErrorKind])
	}
	if plain[FieldDurationMS] != int64(1500) {
		testCase.Errorf("expected duration 1500ms, got %v", plain[FieldDurationMS])
	}
	rows, ok := plain["rows"].([]any)
	if !ok || len(rows) != 1 {
		testCase.Fatalf("expected rows as []any, got %T", plain["rows"])
	}
	if row := rows[0].([]any); row[1] != "a" {
		testCase.Errorf("expected []byte converted to string, got %#v", row[1])
	}
	if plain["when"] != "2024-05-01T12:00:00Z" {
		testCase.Errorf("expected RFC 3339 time, got %v", plain["when"])
	}
	if custom, ok := plain["custom"].(map[string]any); !ok || custom["name"] != "x" {
		testCase.Errorf("expected struct converted to object, got %#v", plain["custom"])
	}

	encoded, err := json.Marshal(NewHistory(record))
	if err != nil {
		testCase.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(encoded), `"error":"no such table"`) {
		testCase.Errorf("expected error in JSON, got %s", encoded)
	}
}

func TestStepRecord_FieldsAreCopies(testCase *testing.T) {
	tables := []string{"employees"}
	record := NewStepRecord(NodeTableSelection, map[string]any{"table_names": tables}, time.Time{}, 0)
	tables[0] = "mutated"

	fields := record.Fields()
	fields["table_names"].([]any)[0] = "mutated again"

	if got := record.Strings("table_names"); !slices.Equal(got, []string{"employees"}) {
		testCase.Errorf("record payload was aliased: %v", got)
	}
}

func TestHistory_EmptyMarshalsAsArray(testCase *testing.T) {
	encoded, err := json.Marshal(History{})
	if err != nil {
		testCase.Fatalf("unexpected error: %v", err)
	}
	if string(encoded) != "[]" {
		testCase.Errorf("expected [], got %s", encoded)
	}
}

func TestExecutionState_ApplyIsAdditive(testCase *testing.T) {
	task := NewTask("How many employees are active?", "hr", "")
	initial := NewExecutionState(task, Schema{"employees": {"id", "active"}, "offices": {"id"}})

	record := NewStepRecord(NodeTableSelection, map[string]any{"table_names": []string{"employees"}}, time.Time{}, 0)
	next := initial.Apply(Delta{
		TentativeSchema: initial.TentativeSchema.NarrowTables([]string{"employees"}),
		Records:         []StepRecord{record},
	})

	if initial.History.Len() != 0 || len(initial.TentativeSchema) != 2 {
		testCase.Error("Apply mutated the receiver")
	}
	if next.Task.ID != task.ID {
		testCase.Error("task must survive a delta that does not set it")
	}
	if len(next.TentativeSchema) != 1 || next.History.Len() != 1 {
		testCase.Errorf("unexpected merged state: %v, %d records", next.TentativeSchema, next.History.Len())
	}
	if len(next.FullSchema) != 2 {
		testCase.Error("full schema must not be narrowed")
	}

	rewritten := next.Task.WithQuestion("How many employees have active = 1?")
	halted := next.Apply(Delta{Task: &rewritten, Halt: true, HaltReason: "stop"})
	if halted.Task.OriginalQuestion != "How many employees are active?" {
		testCase.Errorf("original question lost: %q", halted.Task.OriginalQuestion)
	}
	if !halted.Halted || halted.HaltReason != "stop" || halted.History.Len() != 1 {
		testCase.Errorf("unexpected halted state: %+v", halted)
	}
}

func TestDelta_Then(testCase *testing.T) {
	first := NewStepRecord(NodeKeywordExtraction, nil, time.Time{}, 0)
	second := NewStepRecord(NodeEntityRetrieval, nil, time.Time{}, 0)
	task := NewTask("q", "hr", "")

	combined := Delta{Task: &task, Records: []StepRecord{first}}.
		Then(Delta{TentativeSchema: Schema{"a": {"x"}}, Records: []StepRecord{second}, Halt: true, HaltReason: "precondition"}).
		Then(Delta{HaltReason: "ignored"})

	if combined.Task == nil || combined.Task.ID != task.ID {
		testCase.Error("earlier task replacement must survive")
	}
	if len(combined.Records) != 2 || combined.Records[0].NodeType != NodeKeywordExtraction || combined.Records[1].NodeType != NodeEntityRetrieval {
		testCase.Errorf("unexpected records %v", combined.Records)
	}
	if !combined.Halt || combined.HaltReason != "precondition" {
		testCase.Errorf("expected first halt kept, got %v %q", combined.Halt, combined.HaltReason)
	}

	applied := NewExecutionState(task, Schema{"a": {"x", "y"}}).Apply(combined)
	if applied.History.Len() != 2 || applied.TentativeSchema.ColumnCount() != 1 || !applied.Halted {
		testCase.Errorf("unexpected applied state %+v", applied.Keys())
	}
}

func TestSchema_NarrowAndRestore(testCase *testing.T) {
	full := Schema{
		"Employees": {"id", "name", "active", "office_id"},
		"offices":   {"id", "city"},
	}

	narrowed := full.Narrow(map[string][]string{
		"employees": {"ACTIVE", "id", "salary"},
		"unknown":   {"x"},
	})
	want := Schema{"Employees": {"id", "active"}}
	if !reflect.DeepEqual(narrowed, want) {
		testCase.Fatalf("expected %v, got %v", want, narrowed)
	}

	restored := narrowed.Restore(full, []string{"employees.name", "offices.city", "bogus.col", "nodot"})
	want = Schema{"Employees": {"id", "name", "active"}, "offices": {"city"}}
	if !reflect.DeepEqual(restored, want) {
		testCase.Errorf("expected %v, got %v", want, restored)
	}
	if !reflect.DeepEqual(narrowed, Schema{"Employees": {"id", "active"}}) {
		testCase.Error("Restore mutated the receiver")
	}

	spellings := full.Narrow(map[string][]string{
		"employees": {"id"},
		"Employees": {"id", "name"},
		"EMPLOYEES": {"ID"},
		"OFFICES":   nil,
		"offices":   {"city"},
	})
	want = Schema{"Employees": {"id", "name"}, "offices": {"id", "city"}}
	if !reflect.DeepEqual(spellings, want) {
		testCase.Errorf("expected spellings of one table merged to %v, got %v", want, spellings)
	}
	if spellings.ColumnCount() > full.ColumnCount() {
		testCase.Errorf("narrowing grew the schema: %d > %d columns", spellings.ColumnCount(), full.ColumnCount())
	}

	if !(Schema{"t": {}}).Empty() || (Schema{"t": {"c"}}).Empty() {
		testCase.Error("Empty must ignore tables without columns")
	}
	if got := full.String(); got != "Employees(id, name, active, office_id)\noffices(id, city)" {
		testCase.Errorf("unexpected rendering: %q", got)
	}
}

func TestChatContext_ReferencesAreMonotonic(testCase *testing.T) {
	chat := NewChatContext()
	chat.Reference(Schema{"A": {"x"}, "B": {"y"}})
	chat.Reference(Schema{"B": {"z"}, "C": {"w"}})

	if got := chat.ReferencedTables(); !slices.Equal(got, []string{"A", "B", "C"}) {
		testCase.Errorf("expected {A,B,C}, got %v", got)
	}
	if got := chat.ReferencedColumns(); !slices.Equal(got, []string{"A.x", "B.y", "B.z", "C.w"}) {
		testCase.Errorf("unexpected columns: %v", got)
	}

	snapshot := chat.Clone()
	chat.Reference(Schema{"D": {"v"}})
	if slices.Contains(snapshot.ReferencedTables(), "D") {
		testCase.Error("clone shares state with the original")
	}
}

func TestChatContext_Summary(testCase *testing.T) {
	chat := NewChatContext()
	if chat.HasHistory() || chat.Summary(0) != "" {
		testCase.Fatal("expected empty chat")
	}

	chat.RecordTurn(Turn{Question: "q1", EnhancedQuestion: "q1", SQL: "SELECT 1", Status: StatusSuccess})
	chat.RecordTurn(Turn{Question: "and them?", EnhancedQuestion: "q2 expanded", Status: StatusError})

	summary := chat.Summary(1)
	if strings.Contains(summary, "q1") {
		testCase.Errorf("expected only the last turn, got %q", summary)
	}
	for _, fragment := range []string{"Turn 2", "and them?", "q2 expanded", "failed"} {
		if !strings.Contains(summary, fragment) {
			testCase.Errorf("summary missing %q: %q", fragment, summary)
		}
	}

	if _, err := json.Marshal(chat.ToPlain()); err != nil {
		testCase.Errorf("chat context must serialize: %v", err)
	}
}

func TestTask_WithQuestionKeepsOriginal(testCase *testing.T) {
	task := NewTask("first", "db", "hint")
	if task.ID == "" {
		testCase.Fatal("expected generated id")
	}
	rewritten := task.WithQuestion("second").WithQuestion("third")
	if rewritten.OriginalQuestion != "first" || rewritten.Question != "third" {
		testCase.Errorf("unexpected task: %+v", rewritten)
	}
	if task.Question != "first" {
		testCase.Error("WithQuestion mutated the receiver")
	}
}
