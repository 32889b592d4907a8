package models

import (
	"encoding/json"
	"time"
)

// TraceStepType identifies what kind of event a TraceStep records.
type TraceStepType string

const (
	// StepCodeGenerated records a code block extracted from the LLM's reply.
	StepCodeGenerated TraceStepType = "code_generated"
	// StepCodeOutput records the wrapped observation from one execute() call.
	StepCodeOutput TraceStepType = "code_output"
	// StepSubcallRequest records the instruction+content of an llm_query call.
	StepSubcallRequest TraceStepType = "subcall_request"
	// StepSubcallResponse records the content returned from an llm_query call.
	StepSubcallResponse TraceStepType = "subcall_response"
	// StepFinalAnswer records the FINAL(value) answer that closed the query.
	StepFinalAnswer TraceStepType = "final_answer"
	// StepError records a non-fatal or terminal error (NoCodeBlock, protocol
	// violation, LLM failure, ...). Reaching the iteration cap appends no
	// step.
	StepError TraceStepType = "error"
)

// QueryStatus is the terminal disposition of a query.
type QueryStatus string

const (
	StatusSuccess       QueryStatus = "success"
	StatusMaxIterations QueryStatus = "max_iterations"
	StatusError         QueryStatus = "error"
)

// MaxIterationsSentinel is the answer text returned when a query exhausts
// max_iterations without a FINAL.
const MaxIterationsSentinel = "[Max iterations reached without final answer]"

// TokenUsage tracks prompt/completion token counts for a single LLM call or
// a query-wide aggregate.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Total returns the combined token count.
func (t TokenUsage) Total() int {
	return t.PromptTokens + t.CompletionTokens
}

// Add returns the sum of two TokenUsage values.
func (t TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     t.PromptTokens + other.PromptTokens,
		CompletionTokens: t.CompletionTokens + other.CompletionTokens,
	}
}

// TraceStep is one append-only record in a query's trace.
type TraceStep struct {
	Type       TraceStepType `json:"type"`
	Iteration  int           `json:"iteration"`
	Timestamp  time.Time     `json:"timestamp"`
	Content    string        `json:"content"`
	TokensUsed TokenUsage    `json:"tokens_used,omitempty"`
	DurationMs int64         `json:"duration_ms,omitempty"`
}

// QueryContext carries the identifiers and prompt material needed to
// replay or persist a query independent of the live Engine state.
type QueryContext struct {
	TraceID               string    `json:"trace_id"`
	Question              string    `json:"question"`
	DocumentIDs           []string  `json:"document_ids"`
	Model                 string    `json:"model"`
	SystemPrompt          string    `json:"system_prompt"`
	SubcallPromptTemplate string    `json:"subcall_prompt_template"`
	Project               string    `json:"project"`
	StartedAt             time.Time `json:"started_at"`
}

// QueryResult is the outcome of running the Engine's iteration loop to
// completion (or to a terminal error).
type QueryResult struct {
	Answer             string      `json:"answer"`
	Status             QueryStatus `json:"status"`
	Iterations         int         `json:"iterations"`
	TokensUsed         TokenUsage  `json:"tokens_used"`
	ExecutionTimeSecs  float64     `json:"execution_time_seconds"`
	TraceID            string      `json:"trace_id"`
	Steps              []TraceStep `json:"-"`
	Err                string      `json:"error,omitempty"`
}

// ExecutionResult is the outcome of a single execute() round trip through
// the sandbox: the REPL's stdout/stderr, its FINAL_VAR-eligible return
// value (any JSON value per spec §3, not just a scalar), and any runtime
// error.
type ExecutionResult struct {
	Stdout      string          `json:"stdout"`
	Stderr      string          `json:"stderr"`
	ReturnVal   json.RawMessage `json:"return_value,omitempty"`
	FinalAnswer *string         `json:"final_answer,omitempty"`
	Error       string          `json:"error,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}
