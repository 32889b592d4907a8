// Package llm defines the synchronous LLM client contract the Engine and
// the Executor Adapter's sub-call routing depend on, plus the provider
// implementations in internal/llm/providers.
package llm

import (
	"context"

	"github.com/sheshahq/shesha/pkg/models"
)

// Client is a synchronous completion call: one request, one response. The
// iteration loop and sub-calls never stream — each needs exactly the
// model's full reply before deciding the next step.
type Client interface {
	// Complete sends system + messages to model and returns the assistant's
	// full text reply along with token usage.
	Complete(ctx context.Context, system string, messages []models.Message, model string) (string, models.TokenUsage, error)
}

// LLMError wraps a provider-level failure with the provider and model that
// produced it, so callers can attribute a terminal error step correctly.
type LLMError struct {
	Provider string
	Model    string
	Err      error
}

func (e *LLMError) Error() string {
	if e.Model != "" {
		return e.Provider + " (" + e.Model + "): " + e.Err.Error()
	}
	return e.Provider + ": " + e.Err.Error()
}

func (e *LLMError) Unwrap() error {
	return e.Err
}
