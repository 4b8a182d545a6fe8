package pipeline

import (
	"maps"
	"slices"
	"time"

	"github.com/leofalp/sqlgraph/core/extract"
	"github.com/leofalp/sqlgraph/core/llm"
	"github.com/leofalp/sqlgraph/core/state"
)

// Names of the built-in agents.
const (
	AgentChatContextAnalyzer  = "chat_context_analyzer"
	AgentInformationRetriever = "information_retriever"
	AgentSchemaSelector       = "schema_selector"
	AgentCandidateGenerator   = "candidate_generator"
	AgentUnitTester           = "unit_tester"
	AgentSQLExecutor          = "sql_executor"
	AgentResponseGenerator    = "response_generator"
)

// Selection modes of table_selection and column_selection.
const (
	ModeAskModel    = "ask_model"
	ModePassThrough = "pass_through"
)

// defaultAgents lists the stages each agent runs, in order.
var defaultAgents = map[string][]string{
	AgentChatContextAnalyzer:  {state.NodeContextEnhancement},
	AgentInformationRetriever: {state.NodeKeywordExtraction, state.NodeEntityRetrieval, state.NodeContextRetrieval},
	AgentSchemaSelector:       {state.NodeColumnFiltering, state.NodeTableSelection, state.NodeColumnSelection},
	AgentCandidateGenerator:   {state.NodeCandidateGeneration, state.NodeRevision},
	AgentUnitTester:           {state.NodeUnitTestGeneration, state.NodeEvaluation},
	AgentSQLExecutor:          {state.NodeSQLExecution},
	AgentResponseGenerator:    {state.NodeResponseGeneration},
}

// DefaultNodes is the stage chain used when a configuration lists no nodes.
var DefaultNodes = []string{
	state.NodeKeywordExtraction,
	state.NodeEntityRetrieval,
	state.NodeContextRetrieval,
	state.NodeColumnFiltering,
	state.NodeTableSelection,
	state.NodeColumnSelection,
	state.NodeCandidateGeneration,
	state.NodeRevision,
	state.NodeSQLExecution,
	state.NodeResponseGeneration,
}

// Config describes the graph BuildGraph compiles.
type Config struct {
	// Nodes lists agent or stage names. Without explicit edges they are
	// chained in this order.
	Nodes []string `yaml:"nodes"`

	// Edges connect nodes. Edges naming a node that is not listed are
	// dropped with a warning.
	Edges []EdgeConfig `yaml:"edges"`

	// Entry is the first node. Defaults to the first listed node.
	Entry string `yaml:"entry"`

	// Agents overrides the stages an agent runs.
	Agents map[string][]string `yaml:"agents"`

	// Stages overrides per-stage settings. Unset fields keep their defaults.
	Stages map[string]StageConfig `yaml:"stages"`

	// DefaultModel is used by stages whose model has no name.
	DefaultModel llm.ModelConfig `yaml:"default_model"`

	// MaxSteps bounds the number of node invocations of one run.
	MaxSteps int `yaml:"max_steps"`

	// NodeTimeout bounds each node invocation. Zero means no limit.
	NodeTimeout time.Duration `yaml:"node_timeout"`

	Chat ChatConfig `yaml:"chat"`
}

// EdgeConfig is one directed edge.
type EdgeConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// ChatConfig configures the context-enhancement pre-stage.
type ChatConfig struct {
	// AlwaysEnhance calls the model on the first turn too, with an empty
	// conversation.
	AlwaysEnhance bool `yaml:"always_enhance"`

	// SummaryTurns is the number of recent turns shown to the model. Zero
	// shows all of them.
	SummaryTurns int `yaml:"summary_turns"`
}

// StageConfig holds the settings of one stage.
type StageConfig struct {
	// Template names a built-in prompt template.
	Template string `yaml:"template"`

	Model llm.ModelConfig `yaml:"model"`

	// Extractor names the extractor applied to the model output.
	Extractor string `yaml:"extractor"`

	SamplingCount int `yaml:"sampling_count"`

	// TopK bounds retrieval results per keyword and the number of unit
	// tests generated.
	TopK int `yaml:"top_k"`

	// Mode selects a stage variant, e.g. ModePassThrough for selection stages.
	Mode string `yaml:"mode"`

	// OnError is "halt" or "continue".
	OnError string `yaml:"on_error"`

	// MaxAttempts bounds revision rounds.
	MaxAttempts int `yaml:"max_attempts"`
}

// merge overlays the set fields of override on config.
func (config StageConfig) merge(override StageConfig) StageConfig {
	if override.Template != "" {
		config.Template = override.Template
	}
	if override.Model.Name != "" {
		config.Model = override.Model
	} else {
		if override.Model.Temperature != 0 {
			config.Model.Temperature = override.Model.Temperature
		}
		if override.Model.MaxTokens != 0 {
			config.Model.MaxTokens = override.Model.MaxTokens
		}
		if override.Model.TopP != 0 {
			config.Model.TopP = override.Model.TopP
		}
	}
	if override.Extractor != "" {
		config.Extractor = override.Extractor
	}
	if override.SamplingCount != 0 {
		config.SamplingCount = override.SamplingCount
	}
	if override.TopK != 0 {
		config.TopK = override.TopK
	}
	if override.Mode != "" {
		config.Mode = override.Mode
	}
	if override.OnError != "" {
		config.OnError = override.OnError
	}
	if override.MaxAttempts != 0 {
		config.MaxAttempts = override.MaxAttempts
	}
	return config
}

var defaultStageConfigs = map[string]StageConfig{
	state.NodeContextEnhancement: {
		Template:  PromptQueryEnhancement,
		Extractor: extract.QueryEnhancement,
		OnError:   "continue",
	},
	state.NodeKeywordExtraction: {
		Template:  PromptKeywordExtraction,
		Extractor: extract.PythonList,
		Model:     llm.ModelConfig{Temperature: 0.2},
		OnError:   "continue",
	},
	state.NodeEntityRetrieval: {
		TopK:    5,
		OnError: "continue",
	},
	state.NodeContextRetrieval: {
		TopK:    5,
		OnError: "continue",
	},
	state.NodeColumnFiltering: {
		Template:  PromptFilterColumn,
		Extractor: extract.FilterColumn,
		OnError:   "continue",
	},
	state.NodeTableSelection: {
		Template:  PromptSelectTables,
		Extractor: extract.SelectTables,
		Mode:      ModeAskModel,
		OnError:   "halt",
	},
	state.NodeColumnSelection: {
		Template:  PromptSelectColumns,
		Extractor: extract.SelectColumns,
		Mode:      ModeAskModel,
		OnError:   "halt",
	},
	state.NodeCandidateGeneration: {
		Template:  PromptGenerateCandidate,
		Extractor: extract.GenerateCandidate,
		OnError:   "halt",
	},
	state.NodeRevision: {
		Template:    PromptRevise,
		Extractor:   extract.Revise,
		MaxAttempts: 1,
		OnError:     "continue",
	},
	state.NodeUnitTestGeneration: {
		Template:  PromptGenerateUnitTests,
		Extractor: extract.GenerateUnitTests,
		TopK:      5,
		OnError:   "continue",
	},
	state.NodeEvaluation: {
		Template:  PromptEvaluate,
		Extractor: extract.Evaluate,
		OnError:   "continue",
	},
	state.NodeSQLExecution: {
		OnError: "halt",
	},
	state.NodeResponseGeneration: {
		Template:  PromptResponseGeneration,
		Extractor: extract.ResponseGeneration,
		OnError:   "continue",
	},
}

// StageNames returns the names of the built-in stages, sorted.
func StageNames() []string {
	return slices.Sorted(maps.Keys(stageFactories))
}

// AgentNames returns the names of the built-in agents, sorted.
func AgentNames() []string {
	return slices.Sorted(maps.Keys(defaultAgents))
}

// AgentStages returns the default stages of agent.
func AgentStages(agent string) ([]string, bool) {
	stages, exists := defaultAgents[agent]
	return slices.Clone(stages), exists
}

// stageConfig returns the effective settings of stage.
func (config Config) stageConfig(stage string) StageConfig {
	effective := defaultStageConfigs[stage]
	if override, exists := config.Stages[stage]; exists {
		effective = effective.merge(override)
	}
	if effective.SamplingCount <= 0 {
		effective.SamplingCount = 1
	}
	return effective
}

// agentStages returns the stages of agent, honoring overrides.
func (config Config) agentStages(agent string) ([]string, bool) {
	if stages, exists := config.Agents[agent]; exists {
		_, builtin := defaultAgents[agent]
		return slices.Clone(stages), builtin
	}
	return AgentStages(agent)
}
