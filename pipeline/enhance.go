package pipeline

import (
	"context"

	"github.com/leofalp/sqlgraph/core/extract"
	"github.com/leofalp/sqlgraph/core/state"
)

// contextEnhancement rewrites a follow-up question of a chat into a
// standalone one. On the first turn it records the question verbatim unless
// ChatConfig.AlwaysEnhance is set. A failure leaves the question unchanged.
type contextEnhancement struct {
	*baseStage
}

func (stage *contextEnhancement) Run(ctx context.Context, input Input) (Output, error) {
	question := input.Task.Question
	fields := map[string]any{
		keyOriginalQ:                question,
		extract.KeyEnhancedQuestion: question,
	}

	if !input.Chat.HasHistory() && !stage.chat.AlwaysEnhance {
		fields[keyContextReason] = state.FirstTurnReasoning
		return Output{Fields: fields}, nil
	}

	summary := input.Chat.Summary(stage.chat.SummaryTurns)
	if summary == "" {
		summary = "(no earlier turns)"
	}
	results, err := stage.call(ctx, map[string]any{
		"CURRENT_QUESTION":     question,
		"CONVERSATION_HISTORY": summary,
		"REFERENCED_TABLES":    input.Chat.ReferencedTables(),
		"REFERENCED_COLUMNS":   input.Chat.ReferencedColumns(),
	})
	if err != nil {
		return Output{Fields: fields}, err
	}

	result, _ := first(results)
	enhanced := result.String(extract.KeyEnhancedQuestion)
	fields[extract.KeyEnhancedQuestion] = enhanced
	fields[keyContextReason] = result.String(extract.KeyResponseRational)

	task := input.Task.WithQuestion(enhanced)
	return Output{Fields: fields, Task: &task}, nil
}
