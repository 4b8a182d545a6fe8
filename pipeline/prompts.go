package pipeline

import (
	"fmt"
	"maps"
	"slices"

	"github.com/leofalp/sqlgraph/core/llm"
)

// Names of the built-in prompt templates.
const (
	PromptQueryEnhancement             = "query_enhancement"
	PromptKeywordExtraction            = "keyword_extraction"
	PromptFilterColumn                 = "filter_column"
	PromptSelectTables                 = "select_tables"
	PromptSelectColumns                = "select_columns"
	PromptGenerateCandidate            = "generate_candidate"
	PromptGenerateCandidateCoT         = "generate_candidate_cot"
	PromptGenerateCandidateMarkdownCoT = "generate_candidate_markdown_cot"
	PromptGenerateCandidateFinetuned   = "generate_candidate_finetuned"
	PromptRevise                       = "revise"
	PromptReviseTagged                 = "revise_tagged"
	PromptGenerateUnitTests            = "generate_unit_tests"
	PromptEvaluate                     = "evaluate"
	PromptResponseGeneration           = "response_generation"
)

const sqlSystem = `You are an expert data analyst who writes correct, efficient SQL for the database described by the user. Only use tables and columns that appear in the schema.`

var builtinPrompts = map[string]*llm.PromptTemplate{
	PromptQueryEnhancement: llm.MustPromptTemplate(PromptQueryEnhancement,
		`You rewrite follow-up questions of a conversation about a database so they can be understood without the conversation.`,
		`Conversation so far:
{{.CONVERSATION_HISTORY}}

Tables referenced so far: {{join .REFERENCED_TABLES ", "}}
Columns referenced so far: {{join .REFERENCED_COLUMNS ", "}}

Current question: {{.CURRENT_QUESTION}}

Rewrite the current question as a standalone question. Resolve pronouns and elliptical references using the conversation. If the question is already standalone, return it unchanged.

Respond with a JSON object:
{"reasoning": "<how the context was used>", "enhanced_question": "<standalone question>"}`),

	PromptKeywordExtraction: llm.MustPromptTemplate(PromptKeywordExtraction, "",
		`Extract the keywords, keyphrases and named entities from the question and the hint. Include values that are likely stored in the database, such as names, places and codes.

Question: {{.QUESTION}}
Hint: {{.HINT}}

Answer with a Python list of strings, for example:
["keyword one", "keyword two"]`),

	PromptFilterColumn: llm.MustPromptTemplate(PromptFilterColumn, sqlSystem,
		`Decide whether the column below could be needed to answer the question.

Column: {{.COLUMN_PROFILE}}

Question: {{.QUESTION}}
Hint: {{.HINT}}

Respond with a JSON object:
{"chain_of_thought_reasoning": "<one sentence>", "is_column_information_relevant": "Yes" or "No"}`),

	PromptSelectTables: llm.MustPromptTemplate(PromptSelectTables, sqlSystem,
		`Database schema:
{{.DATABASE_SCHEMA}}

Question: {{.QUESTION}}
Hint: {{.HINT}}

Select the tables needed to answer the question.

Respond with a JSON object:
{"chain_of_thought_reasoning": "<your reasoning>", "table_names": ["table1", "table2"]}`),

	PromptSelectColumns: llm.MustPromptTemplate(PromptSelectColumns, sqlSystem,
		`Database schema:
{{.DATABASE_SCHEMA}}

Question: {{.QUESTION}}
Hint: {{.HINT}}

Select the columns needed to answer the question, including the columns used to join tables.

Respond with a JSON object:
{"chain_of_thought_reasoning": "<your reasoning>", "table_columns": {"table1": ["column1", "column2"]}}`),

	PromptGenerateCandidate: llm.MustPromptTemplate(PromptGenerateCandidate, sqlSystem,
		`Database schema:
{{.DATABASE_SCHEMA}}
{{if .SIMILAR_VALUES}}
Values found in the database that match the question:
{{.SIMILAR_VALUES}}
{{end}}
Question: {{.QUESTION}}
Hint: {{.HINT}}

Write one SQL query answering the question.

Respond with a JSON object:
{"chain_of_thought_reasoning": "<your reasoning>", "SQL": "<the query>"}`),

	PromptGenerateCandidateCoT: llm.MustPromptTemplate(PromptGenerateCandidateCoT, sqlSystem,
		`Database schema:
{{.DATABASE_SCHEMA}}

Question: {{.QUESTION}}
Hint: {{.HINT}}

Think step by step and write a short plan. Then write "My final answer is:" followed by the query in a sql code block.`),

	PromptGenerateCandidateMarkdownCoT: llm.MustPromptTemplate(PromptGenerateCandidateMarkdownCoT, sqlSystem,
		`Database schema:
{{.DATABASE_SCHEMA}}

Question: {{.QUESTION}}
Hint: {{.HINT}}

Reason about the question in markdown. Then put the final query in a sql code block between <FINAL_ANSWER> and </FINAL_ANSWER>.`),

	PromptGenerateCandidateFinetuned: llm.MustPromptTemplate(PromptGenerateCandidateFinetuned, "",
		`{{.DATABASE_SCHEMA}}

-- {{.QUESTION}}
-- {{.HINT}}
Answer with a single SQL query in a sql code block.`),

	PromptRevise: llm.MustPromptTemplate(PromptRevise, sqlSystem,
		`Database schema:
{{.DATABASE_SCHEMA}}

Question: {{.QUESTION}}
Hint: {{.HINT}}

This query was written for the question:
{{.SQL}}

Running it gave:
{{.EXECUTION_RESULT}}

Fix the query so it runs and answers the question. If it is already correct, repeat it.

Respond with a JSON object:
{"chain_of_thought_reasoning": "<what was wrong>", "revised_SQL": "<the fixed query>"}`),

	PromptReviseTagged: llm.MustPromptTemplate(PromptReviseTagged, sqlSystem,
		`Database schema:
{{.DATABASE_SCHEMA}}

Question: {{.QUESTION}}
Hint: {{.HINT}}

Query:
{{.SQL}}

Execution result:
{{.EXECUTION_RESULT}}

Explain what is wrong, then put the corrected query in a sql code block between <FINAL_ANSWER> and </FINAL_ANSWER>.`),

	PromptGenerateUnitTests: llm.MustPromptTemplate(PromptGenerateUnitTests, sqlSystem,
		`Database schema:
{{.DATABASE_SCHEMA}}

Question: {{.QUESTION}}
Hint: {{.HINT}}

Candidate queries:
{{.CANDIDATE_QUERIES}}

Write up to {{.UNIT_TEST_CAP}} unit tests, in plain language, that a correct answer to the question must pass and that tell the candidates apart.

Put the tests as a list of strings between <Answer> and </Answer>, for example:
<Answer>
["The answer must contain one row", "The answer must only count active employees"]
</Answer>`),

	PromptEvaluate: llm.MustPromptTemplate(PromptEvaluate, sqlSystem,
		`Database schema:
{{.DATABASE_SCHEMA}}

Question: {{.QUESTION}}
Hint: {{.HINT}}

Candidate query:
{{.SQL}}

Result of the candidate:
{{.EXECUTION_RESULT}}

Unit tests:
{{range $index, $test := .UNIT_TESTS}}{{add $index 1}}. {{$test}}
{{end}}
Decide for every unit test whether the candidate passes it. Answer between <Answer> and </Answer> with one line per test:
<Answer>
unit test #1: Passed
unit test #2: Failed
</Answer>`),

	PromptResponseGeneration: llm.MustPromptTemplate(PromptResponseGeneration,
		`You explain database query results to people who do not read SQL.`,
		`Question: {{.QUESTION}}

SQL query:
{{.SQL}}

Results:
{{.RESULTS}}

Answer the question in one or two sentences using the results. Do not mention SQL.

Respond with a JSON object:
{"reasoning": "<how the results answer the question>", "response": "<the answer>"}`),
}

// PromptNames returns the built-in prompt template names, sorted.
func PromptNames() []string {
	return slices.Sorted(maps.Keys(builtinPrompts))
}

func lookupPrompt(name string) (*llm.PromptTemplate, error) {
	prompt, exists := builtinPrompts[name]
	if !exists {
		return nil, fmt.Errorf("unknown prompt template %q", name)
	}
	return prompt, nil
}
