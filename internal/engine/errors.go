package engine

import "fmt"

// LoopPhase identifies where in the iteration loop an error occurred.
type LoopPhase string

const (
	PhaseStartup       LoopPhase = "startup"
	PhaseLLMCall       LoopPhase = "llm_call"
	PhaseCodeExtract   LoopPhase = "code_extract"
	PhaseExecute       LoopPhase = "execute"
	PhaseCleanup       LoopPhase = "cleanup"
)

// LoopError carries the phase and iteration an error occurred in, so a
// terminal error step can describe precisely where the query failed.
type LoopError struct {
	Phase     LoopPhase
	Iteration int
	Message   string
	Cause     error
}

func (e *LoopError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("loop error at %s (iteration %d): %s", e.Phase, e.Iteration, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("loop error at %s (iteration %d): %v", e.Phase, e.Iteration, e.Cause)
	}
	return fmt.Sprintf("loop error at %s (iteration %d)", e.Phase, e.Iteration)
}

func (e *LoopError) Unwrap() error {
	return e.Cause
}
