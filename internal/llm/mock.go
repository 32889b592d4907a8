package llm

import (
	"context"
	"fmt"

	"github.com/sheshahq/shesha/pkg/models"
)

// MockClient is a scriptable Client for tests: each call pops the next
// reply off Replies (matched to Calls in order), or falls back to
// ReplyFunc if Replies is exhausted.
type MockClient struct {
	Replies  []string
	ReplyFunc func(system string, messages []models.Message, model string) (string, error)
	Calls    []MockCall
	Usage    models.TokenUsage
}

// MockCall records one invocation for assertions in tests.
type MockCall struct {
	System   string
	Messages []models.Message
	Model    string
}

func (m *MockClient) Complete(ctx context.Context, system string, messages []models.Message, model string) (string, models.TokenUsage, error) {
	m.Calls = append(m.Calls, MockCall{System: system, Messages: messages, Model: model})

	if len(m.Replies) > 0 {
		reply := m.Replies[0]
		m.Replies = m.Replies[1:]
		return reply, m.Usage, nil
	}
	if m.ReplyFunc != nil {
		reply, err := m.ReplyFunc(system, messages, model)
		return reply, m.Usage, err
	}
	return "", models.TokenUsage{}, fmt.Errorf("mock client: no reply configured for call %d", len(m.Calls))
}
