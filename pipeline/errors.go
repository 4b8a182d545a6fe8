package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/leofalp/sqlgraph/core/extract"
	"github.com/leofalp/sqlgraph/core/llm"
	"github.com/leofalp/sqlgraph/core/state"
)

// PreconditionError reports that a stage ran before the state it depends on
// existed.
type PreconditionError struct {
	Node   string
	Reason string
}

func (preconditionError *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed for %q: %s", preconditionError.Node, preconditionError.Reason)
}

// PanicError is a panic recovered from a stage.
type PanicError struct {
	Node  string
	Value any
	Stack []byte
}

func (panicError *PanicError) Error() string {
	return fmt.Sprintf("stage %q panicked: %v", panicError.Node, panicError.Value)
}

// ErrorKind classifies err for the step record.
func ErrorKind(err error) state.ErrorKind {
	var (
		panicError        *PanicError
		preconditionError *PreconditionError
		invocationError   *llm.InvocationError
		mismatchError     *extract.ShapeMismatchError
		extractionError   *extract.ExtractionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &panicError):
		return state.ErrorKindPanic
	case errors.As(err, &preconditionError):
		return state.ErrorKindPrecondition
	case errors.As(err, &invocationError):
		return state.ErrorKindInvocation
	case errors.As(err, &mismatchError):
		return state.ErrorKindShapeMismatch
	case errors.As(err, &extractionError):
		return state.ErrorKindExtraction
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return state.ErrorKindInvocation
	default:
		return state.ErrorKindUnknown
	}
}
