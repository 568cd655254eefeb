package types

import (
	"github.com/juju/errors"
)

// Error kinds raised by the engine. They are wrapped with context through
// errors.Annotatef, so match them with errors.Is.
var (
	ErrGraphNotFound = errors.New("graph not found")
	ErrRunNotFound   = errors.New("run not found")
	ErrNodeNotFound  = errors.New("node not found")
	ErrToolNotFound  = errors.New("tool not found")
	ErrInvalidGraph  = errors.New("invalid graph")

	ErrMissingFunctionConfig      = errors.New("function node has no tool configured")
	ErrMissingConditionConfig     = errors.New("condition node has no condition configured")
	ErrMissingLoopConditionConfig = errors.New("loop node has no loop condition configured")
	ErrExpressionEvaluation       = errors.New("expression evaluation failed")

	ErrStepBudgetExceeded = errors.New("step budget exceeded")
)

var (
	_ error = &FatalError{}
)

// NewFatalError marks err as fatal to the run it happened in. Every node
// dispatch failure ends the run, the wrapper only records where it came from.
func NewFatalError(nodeID string, otherErr error) error {
	return &FatalError{baseError: newBaseErr(otherErr), NodeID: nodeID}
}

func newBaseErr(otherErr error) *baseError {
	return &baseError{otherErr}
}

type baseError struct {
	BaseErr error
}

func (e *baseError) Error() string {
	return e.BaseErr.Error()
}

func (e *baseError) Unwrap() error {
	return e.BaseErr
}

// FatalError carries the node a run failed on; match it with errors.As.
type FatalError struct {
	*baseError
	NodeID string
}
