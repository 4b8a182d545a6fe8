package observability

// Semantic conventions for observability attributes.
// These constants define standard attribute names to ensure consistency
// across the extractor, the LLM façade, the pipeline and the database layer.

// --- LLM Attributes ---

const (
	// AttrLLMProvider is the name of the transport (e.g., "openai")
	AttrLLMProvider = "llm.provider"

	// AttrLLMModel is the model identifier
	AttrLLMModel = "llm.model"

	// AttrLLMEndpoint is the API endpoint URL
	AttrLLMEndpoint = "llm.endpoint"

	// AttrLLMStep is the pipeline step the call was issued for
	AttrLLMStep = "llm.step"

	// AttrLLMRequestCount is the number of prompts in one façade call
	AttrLLMRequestCount = "llm.request.count"

	// AttrLLMSamplingCount is the number of samples drawn per prompt
	AttrLLMSamplingCount = "llm.sampling_count"

	// AttrLLMFinishReason is the reason the generation finished
	AttrLLMFinishReason = "llm.finish_reason"

	// AttrLLMTemperature is the sampling temperature used
	AttrLLMTemperature = "llm.temperature"

	// AttrLLMTokensPrompt is the number of prompt tokens
	AttrLLMTokensPrompt = "llm.tokens.prompt" // #nosec G101 -- Not a credential, token refers to LLM tokens

	// AttrLLMTokensCompletion is the number of completion tokens
	AttrLLMTokensCompletion = "llm.tokens.completion" // #nosec G101 -- Not a credential, token refers to LLM tokens
)

// --- Extraction Attributes ---

const (
	// AttrExtractor is the name of the extractor dialect
	AttrExtractor = "extract.extractor"

	// AttrExtractStrategy is the strategy that produced the value
	AttrExtractStrategy = "extract.strategy"

	// AttrExtractDropped is the number of samples dropped after failed extraction
	AttrExtractDropped = "extract.dropped"
)

// --- Pipeline Attributes ---

const (
	// AttrTaskID is the identifier of the task being answered
	AttrTaskID = "task.id"

	// AttrNodeType is the pipeline stage identifier
	AttrNodeType = "node.type"

	// AttrNodeStatus is the step status ("success" or "error")
	AttrNodeStatus = "node.status"

	// AttrErrorKind classifies a failed step
	AttrErrorKind = "node.error_kind"

	// AttrSessionID is the chat session identifier
	AttrSessionID = "session.id"

	// AttrSessionCount is the number of live chat sessions
	AttrSessionCount = "session.count"

	// AttrRunMode distinguishes one-shot queries from chat turns
	AttrRunMode = "run.mode"
)

// --- Database Attributes ---

const (
	// AttrDBID is the configured database identifier
	AttrDBID = "db.id"

	// AttrDBDriver is the database/sql driver name
	AttrDBDriver = "db.driver"

	// AttrDBStatement is the executed statement (truncated)
	AttrDBStatement = "db.statement"

	// AttrDBRowCount is the number of rows returned
	AttrDBRowCount = "db.row_count"
)

// --- HTTP Attributes ---

const (
	// AttrHTTPMethod is the HTTP method (GET, POST, etc.)
	AttrHTTPMethod = "http.method"

	// AttrHTTPStatusCode is the HTTP response status code
	AttrHTTPStatusCode = "http.status_code"

	// AttrHTTPURL is the request URL
	AttrHTTPURL = "http.url"

	// AttrHTTPRequestBodySize is the request body size in bytes
	AttrHTTPRequestBodySize = "http.request.body_size"

	// AttrHTTPResponseBodySize is the response body size in bytes
	AttrHTTPResponseBodySize = "http.response.body_size"
)

// --- General Attributes ---

const (
	// AttrError is the error message
	AttrError = "error"

	// AttrDuration is the operation duration
	AttrDuration = "duration"

	// AttrStatus is the operation status
	AttrStatus = "status"
)

// --- Span Names ---

const (
	// SpanEngineRun covers one one-shot query or chat turn
	SpanEngineRun = "sqlgraph.engine.run"

	// SpanNodeRun covers one wrapped pipeline stage
	SpanNodeRun = "sqlgraph.node.run"

	// SpanLLMCall covers one façade call (all prompts and samples)
	SpanLLMCall = "sqlgraph.llm.call"

	// SpanLLMRequest covers one HTTP request to the model endpoint
	SpanLLMRequest = "sqlgraph.llm.request"

	// SpanDBQuery covers one statement against a database
	SpanDBQuery = "sqlgraph.db.query"
)

// --- Event Names ---

const (
	// EventSessionCreate marks when a chat session is stored
	EventSessionCreate = "session.create"

	// EventSessionDelete marks when a chat session is removed
	EventSessionDelete = "session.delete"

	// EventTurnRecorded marks when a chat turn is committed to its session
	EventTurnRecorded = "session.turn"

	// EventTurnPersisted marks when a chat turn is written to a turn log
	EventTurnPersisted = "session.turn.persisted"

	// EventSessionResume marks when a chat session is rebuilt from a turn log
	EventSessionResume = "session.resume"
)

// --- Metric Names ---

const (
	// MetricRunCount counts engine runs by status
	MetricRunCount = "sqlgraph.engine.run.count"

	// MetricRunDuration is the histogram for engine run duration
	MetricRunDuration = "sqlgraph.engine.run.duration"

	// MetricNodeCount counts wrapped stage invocations by node type and status
	MetricNodeCount = "sqlgraph.node.count"

	// MetricNodeDuration is the histogram for wrapped stage duration
	MetricNodeDuration = "sqlgraph.node.duration"

	// MetricLLMRequestCount counts model requests by step and status
	MetricLLMRequestCount = "sqlgraph.llm.request.count"

	// MetricLLMRequestDuration is the histogram for model request duration
	MetricLLMRequestDuration = "sqlgraph.llm.request.duration"

	// MetricLLMTokensTotal counts tokens reported by the model endpoint
	MetricLLMTokensTotal = "sqlgraph.llm.tokens.total"

	// MetricExtractFailureCount counts samples whose extraction failed
	MetricExtractFailureCount = "sqlgraph.extract.failure.count"

	// MetricDBQueryCount counts statements by database and status
	MetricDBQueryCount = "sqlgraph.db.query.count"

	// MetricDBQueryDuration is the histogram for statement duration
	MetricDBQueryDuration = "sqlgraph.db.query.duration"
)
