package pipeline

import (
	"context"
	"fmt"

	"github.com/leofalp/sqlgraph/core/extract"
	"github.com/leofalp/sqlgraph/core/llm"
	"github.com/leofalp/sqlgraph/core/state"
	"github.com/leofalp/sqlgraph/patterns/graph"
	"github.com/leofalp/sqlgraph/providers/database"
	"github.com/leofalp/sqlgraph/providers/observability"
	"github.com/leofalp/sqlgraph/providers/retrieval"
)

// Deps are the collaborators stages call.
type Deps struct {
	Invoker   llm.Invoker
	Database  database.Database
	Retriever retrieval.Retriever
	Observer  observability.Provider
}

// baseStage carries what every stage needs. Stages embed it.
type baseStage struct {
	name   string
	config StageConfig
	prompt *llm.PromptTemplate
	deps   Deps
	chat   ChatConfig
}

// Name implements Stage.
func (base *baseStage) Name() string {
	return base.name
}

// call issues one batch of requests through the invoker.
func (base *baseStage) call(ctx context.Context, requests ...map[string]any) ([][]extract.Result, error) {
	return base.deps.Invoker.Call(ctx, llm.Call{
		Template:      base.prompt,
		Model:         base.config.Model,
		Extractor:     base.config.Extractor,
		Requests:      requests,
		Step:          base.name,
		SamplingCount: base.config.SamplingCount,
	})
}

type stageFactory func(base *baseStage) Stage

// stageFactories is the closed set of stages.
var stageFactories = map[string]stageFactory{
	state.NodeContextEnhancement:  func(base *baseStage) Stage { return &contextEnhancement{base} },
	state.NodeKeywordExtraction:   func(base *baseStage) Stage { return &keywordExtraction{base} },
	state.NodeEntityRetrieval:     func(base *baseStage) Stage { return &entityRetrieval{base} },
	state.NodeContextRetrieval:    func(base *baseStage) Stage { return &contextRetrieval{base} },
	state.NodeColumnFiltering:     func(base *baseStage) Stage { return &columnFiltering{base} },
	state.NodeTableSelection:      func(base *baseStage) Stage { return &tableSelection{base} },
	state.NodeColumnSelection:     func(base *baseStage) Stage { return &columnSelection{base} },
	state.NodeCandidateGeneration: func(base *baseStage) Stage { return &candidateGeneration{base} },
	state.NodeRevision:            func(base *baseStage) Stage { return &revision{base} },
	state.NodeUnitTestGeneration:  func(base *baseStage) Stage { return &unitTestGeneration{base} },
	state.NodeEvaluation:          func(base *baseStage) Stage { return &evaluation{base} },
	state.NodeSQLExecution:        func(base *baseStage) Stage { return &sqlExecution{base} },
	state.NodeResponseGeneration:  func(base *baseStage) Stage { return &responseGeneration{base} },
}

// retrievalStages need a Retriever.
var retrievalStages = map[string]bool{
	state.NodeEntityRetrieval:  true,
	state.NodeContextRetrieval: true,
}

// unscopedStages run without a tentative schema.
var unscopedStages = map[string]bool{
	state.NodeContextEnhancement: true,
	state.NodeResponseGeneration: true,
}

// NewStage builds the named stage from config and returns it wrapped as a
// graph node.
func NewStage(name string, config Config, deps Deps) (Node, error) {
	factory, exists := stageFactories[name]
	if !exists {
		return nil, &graph.ConfigurationError{Component: "stage", Name: name, Reason: "not a known stage"}
	}

	stageConfig := config.stageConfig(name)
	stageConfig.Model = stageConfig.Model.WithDefaults(config.DefaultModel)

	base := &baseStage{name: name, config: stageConfig, deps: deps, chat: config.Chat}
	if stageConfig.Template != "" {
		prompt, err := lookupPrompt(stageConfig.Template)
		if err != nil {
			return nil, &graph.ConfigurationError{Component: "stage", Name: name, Reason: err.Error()}
		}
		base.prompt = prompt
		if deps.Invoker == nil {
			return nil, &graph.ConfigurationError{Component: "stage", Name: name, Reason: "requires an invoker"}
		}
	}
	if retrievalStages[name] && deps.Retriever == nil {
		return nil, &graph.ConfigurationError{Component: "stage", Name: name, Reason: "requires a retriever"}
	}
	if deps.Database == nil && name != state.NodeContextEnhancement && name != state.NodeKeywordExtraction {
		return nil, &graph.ConfigurationError{Component: "stage", Name: name, Reason: "requires a database"}
	}
	switch stageConfig.Mode {
	case "", ModeAskModel, ModePassThrough:
	default:
		return nil, &graph.ConfigurationError{Component: "stage", Name: name, Reason: fmt.Sprintf("unknown mode %q", stageConfig.Mode)}
	}

	policy, err := ParseFailurePolicy(stageConfig.OnError)
	if err != nil {
		return nil, &graph.ConfigurationError{Component: "stage", Name: name, Reason: err.Error()}
	}

	opts := []WrapOption{WithFailurePolicy(policy), WithObserver(deps.Observer)}
	if unscopedStages[name] {
		opts = append(opts, WithoutSchemaCheck())
	}
	return Wrap(factory(base), opts...), nil
}

// NewAgent builds the named agent: a node running its stages in order.
func NewAgent(name string, config Config, deps Deps) (Node, error) {
	stageNames, builtin := config.agentStages(name)
	if !builtin {
		return nil, &graph.ConfigurationError{Component: "agent", Name: name, Reason: "not a known agent"}
	}
	if len(stageNames) == 0 {
		return nil, &graph.ConfigurationError{Component: "agent", Name: name, Reason: "has no stages"}
	}

	nodes := make([]Node, 0, len(stageNames))
	for _, stageName := range stageNames {
		node, err := NewStage(stageName, config, deps)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", name, err)
		}
		nodes = append(nodes, node)
	}
	return sequence(nodes), nil
}
