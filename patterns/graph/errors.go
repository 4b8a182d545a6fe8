package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrNoNodes is returned by Build for a graph without nodes.
	ErrNoNodes = errors.New("graph must contain at least one node")

	// ErrMaxStepsExceeded is returned when a run reaches its step bound.
	ErrMaxStepsExceeded = errors.New("graph exceeded maximum steps")
)

// ConfigurationError reports a graph definition that references something
// that does not exist. It is fatal for the entry point and reported as a
// warning for edges.
type ConfigurationError struct {
	// Component is what the reference appears in, e.g. "entry point" or "edge".
	Component string

	// Name is the unresolved name.
	Name string

	// Reason describes the problem.
	Reason string
}

func (configurationError *ConfigurationError) Error() string {
	return fmt.Sprintf("graph configuration: %s %q: %s", configurationError.Component, configurationError.Name, configurationError.Reason)
}
