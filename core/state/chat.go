package state

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// FirstTurnReasoning is recorded as the enhancement reasoning when a chat has
// no earlier turns to draw context from.
const FirstTurnReasoning = "first turn, no context"

// Turn is one completed question/answer exchange of a chat session.
type Turn struct {
	Question         string     `json:"question"`
	EnhancedQuestion string     `json:"enhanced_question"`
	SQL              string     `json:"sql,omitempty"`
	Response         string     `json:"response,omitempty"`
	Status           StepStatus `json:"status"`
	At               time.Time  `json:"at"`
}

// ChatContext is the cross-turn memory of one chat session: the ordered turns
// and the union of every table and column the schema-selection stages resolved.
// The referenced sets only ever grow.
//
// ChatContext is not safe for concurrent mutation; the owning session
// serializes turns. Pipeline runs receive a [ChatContext.Clone].
type ChatContext struct {
	turns   []Turn
	tables  map[string]struct{}
	columns map[string]struct{}
}

// NewChatContext returns an empty chat context.
func NewChatContext() *ChatContext {
	return &ChatContext{
		tables:  make(map[string]struct{}),
		columns: make(map[string]struct{}),
	}
}

// RecordTurn appends a completed turn.
func (chat *ChatContext) RecordTurn(turn Turn) {
	if turn.At.IsZero() {
		turn.At = time.Now()
	}
	chat.turns = append(chat.turns, turn)
}

// Reference unions every table and column of schema into the referenced sets.
// Columns are stored as "table.column".
func (chat *ChatContext) Reference(schema Schema) {
	if chat.tables == nil {
		chat.tables = make(map[string]struct{})
	}
	if chat.columns == nil {
		chat.columns = make(map[string]struct{})
	}
	for table, columns := range schema {
		chat.tables[table] = struct{}{}
		for _, column := range columns {
			chat.columns[table+"."+column] = struct{}{}
		}
	}
}

// Turns returns a copy of the recorded turns in order.
func (chat *ChatContext) Turns() []Turn {
	if chat == nil {
		return nil
	}
	return slices.Clone(chat.turns)
}

// HasHistory reports whether at least one turn was recorded.
func (chat *ChatContext) HasHistory() bool {
	return chat != nil && len(chat.turns) > 0
}

// ReferencedTables returns the referenced table names, sorted.
func (chat *ChatContext) ReferencedTables() []string {
	if chat == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(chat.tables))
}

// ReferencedColumns returns the referenced "table.column" names, sorted.
func (chat *ChatContext) ReferencedColumns() []string {
	if chat == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(chat.columns))
}

// Summary renders the last maxTurns turns for a prompt. maxTurns <= 0 means all.
func (chat *ChatContext) Summary(maxTurns int) string {
	if !chat.HasHistory() {
		return ""
	}
	turns := chat.turns
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}

	var builder strings.Builder
	offset := len(chat.turns) - len(turns)
	for index, turn := range turns {
		fmt.Fprintf(&builder, "Turn %d\n", offset+index+1)
		fmt.Fprintf(&builder, "  Question: %s\n", turn.Question)
		if turn.EnhancedQuestion != "" && turn.EnhancedQuestion != turn.Question {
			fmt.Fprintf(&builder, "  Interpreted as: %s\n", turn.EnhancedQuestion)
		}
		if turn.SQL != "" {
			fmt.Fprintf(&builder, "  SQL: %s\n", turn.SQL)
		}
		if turn.Response != "" {
			fmt.Fprintf(&builder, "  Answer: %s\n", turn.Response)
		}
		if turn.Status == StatusError {
			builder.WriteString("  Outcome: failed\n")
		}
	}
	return strings.TrimSuffix(builder.String(), "\n")
}

// Clone returns a deep copy. Cloning nil returns nil.
func (chat *ChatContext) Clone() *ChatContext {
	if chat == nil {
		return nil
	}
	cloned := NewChatContext()
	cloned.turns = slices.Clone(chat.turns)
	maps.Copy(cloned.tables, chat.tables)
	maps.Copy(cloned.columns, chat.columns)
	return cloned
}

// ToPlain renders the chat context as a plain object.
func (chat *ChatContext) ToPlain() map[string]any {
	if chat == nil {
		return nil
	}
	turns := make([]any, len(chat.turns))
	for index, turn := range chat.turns {
		turns[index] = Plain(map[string]any{
			"question":          turn.Question,
			"enhanced_question": turn.EnhancedQuestion,
			"sql":               turn.SQL,
			"response":          turn.Response,
			"status":            string(turn.Status),
			"at":                turn.At,
		})
	}
	return map[string]any{
		"turns":              turns,
		"referenced_tables":  Plain(chat.ReferencedTables()),
		"referenced_columns": Plain(chat.ReferencedColumns()),
	}
}
