package state

// Node types recorded in StepRecord.NodeType.
const (
	NodeContextEnhancement  = "context_enhancement"
	NodeKeywordExtraction   = "keyword_extraction"
	NodeEntityRetrieval     = "entity_retrieval"
	NodeContextRetrieval    = "context_retrieval"
	NodeColumnFiltering     = "column_filtering"
	NodeTableSelection      = "table_selection"
	NodeColumnSelection     = "column_selection"
	NodeCandidateGeneration = "candidate_generation"
	NodeRevision            = "revision"
	NodeUnitTestGeneration  = "unit_test_generation"
	NodeEvaluation          = "evaluation"
	NodeSQLExecution        = "sql_execution"
	NodeResponseGeneration  = "response_generation"
)

// SQLKey is the payload key holding a SQL statement.
const SQLKey = "SQL"

// SQLProducingNodes are the node types whose SQL payload counts as a pipeline answer.
// Later entries do not take priority; the most recent matching record wins.
var SQLProducingNodes = []string{NodeCandidateGeneration, NodeRevision, NodeEvaluation}
