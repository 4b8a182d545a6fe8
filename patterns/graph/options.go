package graph

import (
	"time"

	"github.com/leofalp/sqlgraph/providers/observability"
)

// DefaultMaxSteps bounds the node invocations of one run unless WithMaxSteps
// says otherwise.
const DefaultMaxSteps = 100

// Option tunes a whole graph. See NewBuilder.
type Option func(*graphConfig)

// NodeOption tunes one node. See Builder.AddNode.
type NodeOption func(*nodeConfig)

type nodeConfig struct {
	timeout time.Duration
}

// WithMaxSteps bounds the number of node invocations in one run. A run that
// reaches the bound fails with ErrMaxStepsExceeded. Conditional cycles such as
// revision loops rely on it as a backstop.
func WithMaxSteps(maxSteps int) Option {
	return func(config *graphConfig) {
		if maxSteps > 0 {
			config.maxSteps = maxSteps
		}
	}
}

// WithExecutionTimeout puts a deadline on each run, visible to nodes through
// their context. Zero disables it.
func WithExecutionTimeout(timeout time.Duration) Option {
	return func(config *graphConfig) {
		config.executionTimeout = timeout
	}
}

// WithObserver reports runs to observer. Without it the graph falls back to
// the observer found in the run context.
func WithObserver(observer observability.Provider) Option {
	return func(config *graphConfig) {
		config.observer = observer
	}
}

// WithName labels the graph in logs and spans.
func WithName(name string) Option {
	return func(config *graphConfig) {
		config.name = name
	}
}

// WithNodeTimeout limits each invocation of the node, e.g. 90s for
// candidate_generator. The run deadline still applies on top.
func WithNodeTimeout(timeout time.Duration) NodeOption {
	return func(config *nodeConfig) {
		config.timeout = timeout
	}
}
