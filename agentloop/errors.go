package agentloop

import (
	"errors"
	"fmt"
)

// ErrInterrupted is returned by Run after Interrupt is called.
var ErrInterrupted = errors.New("agent run interrupted")

// ContextOverflowError means the newest step cannot fit the unit budget on
// its own. It is the only error that aborts a run.
type ContextOverflowError struct {
	Units  int
	Budget int
}

func (e *ContextOverflowError) Error() string {
	return fmt.Sprintf("context overflow: newest step needs %d units, budget is %d", e.Units, e.Budget)
}

// ActionParseError reports an action section that could not be split into
// tool invocations. Nothing from that section is dispatched.
type ActionParseError struct {
	Line   string
	Reason string
}

func (e *ActionParseError) Error() string {
	if e.Line == "" {
		return "action parse error: " + e.Reason
	}
	return fmt.Sprintf("action parse error: %s in %q", e.Reason, e.Line)
}

// ToolExecutionError wraps a tool failure. The dispatcher turns it into an
// error observation.
type ToolExecutionError struct {
	Tool  string
	Input string
	Err   error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// CompletionBackendError wraps a failed model call for one iteration.
type CompletionBackendError struct {
	Iteration int
	Err       error
}

func (e *CompletionBackendError) Error() string {
	return fmt.Sprintf("completion failed on iteration %d: %v", e.Iteration, e.Err)
}

func (e *CompletionBackendError) Unwrap() error { return e.Err }
