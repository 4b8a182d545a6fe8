package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// Names of the built-in extractors.
const (
	PythonList                   = "python_list_output_parser"
	List                         = "list_output_parser"
	FilterColumn                 = "filter_column"
	SelectTables                 = "select_tables"
	SelectColumns                = "select_columns"
	GenerateCandidate            = "generate_candidate"
	GenerateCandidateFinetuned   = "generated_candidate_finetuned"
	GenerateCandidateMarkdownCoT = "generate_candidate_gemini_markdown_cot"
	GenerateCandidateCoT         = "generate_candidate_gemini_cot"
	Revise                       = "revise"
	ReviseTagged                 = "revise_new"
	Evaluate                     = "evaluate"
	GenerateUnitTests            = "generate_unit_tests"
	ResponseGeneration           = "response_generation"
	QueryEnhancement             = "query_enhancement"
)

// Keys shared by several dialects.
const (
	KeyReasoning        = "chain_of_thought_reasoning"
	KeyResponse         = "response"
	KeyResponseRational = "reasoning"
	KeyRevisedSQL       = "revised_SQL"
	KeyRefinedSQL       = "refined_sql_query"
	KeyScores           = "scores"
	KeyUnitTests        = "unit_tests"
	KeyEnhancedQuestion = "enhanced_question"
)

// DirectResponseReasoning fills the reasoning of a response that carried none.
const DirectResponseReasoning = "Direct response provided without explicit reasoning."

// minimumResponseWords is the shortest response accepted as a real answer.
const minimumResponseWords = 3

var (
	answerTag      = &Tag{Open: "<Answer>", Close: "</Answer>", Required: true}
	finalAnswerTag = &Tag{Open: "<FINAL_ANSWER>", Close: "</FINAL_ANSWER>"}

	unitTestVerdict = regexp.MustCompile(`(?i)unit\s+test\s*#?\s*\d+\s*:\s*(passed|failed)`)
)

// builtinShapes is the closed set of dialect configurations.
var builtinShapes = map[string]Shape{
	PythonList: {Kind: KindList, Fence: "python"},
	List:       {Kind: KindList},
	FilterColumn: {
		Kind:         KindJSON,
		Fence:        "json",
		RequiredKeys: []string{"is_column_information_relevant"},
		Defaults:     map[string]any{KeyReasoning: ""},
	},
	SelectTables: {
		Kind:         KindJSON,
		Fence:        "json",
		RequiredKeys: []string{"table_names"},
		Defaults:     map[string]any{KeyReasoning: ""},
	},
	SelectColumns: {
		Kind:         KindJSON,
		Fence:        "json",
		RequiredKeys: []string{"table_columns"},
		Defaults:     map[string]any{KeyReasoning: ""},
	},
	GenerateCandidate: {
		Kind:         KindJSON,
		Fence:        "json",
		RequiredKeys: []string{"SQL"},
		Defaults:     map[string]any{KeyReasoning: ""},
		Finish:       requireNonEmpty("SQL"),
	},
	GenerateCandidateFinetuned: {Kind: KindSQL, Fence: "sql"},
	GenerateCandidateMarkdownCoT: {
		Kind:               KindSQL,
		Tag:                finalAnswerTag,
		Fence:              "sql",
		CapturePlan:        true,
		CollapseWhitespace: true,
	},
	GenerateCandidateCoT: {
		Kind:        KindSQL,
		FinalMarker: "My final answer is:",
		Fence:       "sql",
		CapturePlan: true,
	},
	Revise: {
		Kind:         KindJSON,
		Fence:        "json",
		RequiredKeys: []string{KeyRevisedSQL},
		Defaults:     map[string]any{KeyReasoning: ""},
		Finish:       requireNonEmpty(KeyRevisedSQL),
	},
	ReviseTagged: {
		Kind:               KindSQL,
		Tag:                finalAnswerTag,
		Fence:              "sql",
		SQLKey:             KeyRefinedSQL,
		CollapseWhitespace: true,
	},
	Evaluate: {
		Kind:   KindText,
		Tag:    answerTag,
		Finish: scoreUnitTests,
	},
	GenerateUnitTests: {
		Kind:   KindList,
		Tag:    answerTag,
		Finish: wrapList(KeyUnitTests),
	},
	ResponseGeneration: {
		Kind:         KindJSON,
		Fence:        "json",
		RequiredKeys: []string{KeyResponse},
		Aliases:      map[string][]string{KeyResponseRational: {KeyReasoning}},
		Defaults:     map[string]any{KeyResponseRational: DirectResponseReasoning},
		Salvage:      true,
		SalvageKeys:  []string{KeyResponseRational},
		Placeholders: map[string]string{
			KeyResponse: "I could not produce a complete answer to this question.",
		},
		Finish: requireWords(KeyResponse, minimumResponseWords),
	},
	QueryEnhancement: {
		Kind:         KindJSON,
		Fence:        "json",
		RequiredKeys: []string{KeyEnhancedQuestion},
		Aliases:      map[string][]string{KeyResponseRational: {KeyReasoning}},
		Defaults:     map[string]any{KeyResponseRational: ""},
		Finish:       requireNonEmpty(KeyEnhancedQuestion),
	},
}

func requireNonEmpty(key string) func(any) (any, error) {
	return func(value any) (any, error) {
		object, _ := value.(map[string]any)
		text := strings.TrimSpace(stringValue(object[key]))
		if text == "" {
			return nil, fmt.Errorf("%q must not be empty", key)
		}
		object[key] = text
		return object, nil
	}
}

func requireWords(key string, minimum int) func(any) (any, error) {
	return func(value any) (any, error) {
		object, _ := value.(map[string]any)
		text := strings.TrimSpace(stringValue(object[key]))
		if len(strings.Fields(text)) < minimum {
			return nil, fmt.Errorf("%q is too short: %q", key, text)
		}
		object[key] = text
		return object, nil
	}
}

func wrapList(key string) func(any) (any, error) {
	return func(value any) (any, error) {
		return map[string]any{key: value}, nil
	}
}

// scoreUnitTests turns "unit test #n: Passed|Failed" lines into 1/0 scores.
func scoreUnitTests(value any) (any, error) {
	text, _ := value.(string)
	scores := make([]any, 0)
	for _, line := range strings.Split(text, "\n") {
		match := unitTestVerdict.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		if strings.EqualFold(match[1], "passed") {
			scores = append(scores, 1)
		} else {
			scores = append(scores, 0)
		}
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("no unit test verdicts found")
	}
	return map[string]any{KeyScores: scores}, nil
}
