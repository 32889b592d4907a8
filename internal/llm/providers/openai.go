package providers

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sheshahq/shesha/pkg/models"
)

// OpenAIProvider is a synchronous chat-completion client for OpenAI,
// usable as the recursive-model provider for sub-calls.
type OpenAIProvider struct {
	BaseProvider
	client       *openai.Client
	defaultModel string
}

// NewOpenAIProvider builds an OpenAIProvider. An empty apiKey yields a
// provider whose Complete always fails, so callers can construct the
// client eagerly and defer the missing-key error to first use.
func NewOpenAIProvider(apiKey, defaultModel string) *OpenAIProvider {
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}
	p := &OpenAIProvider{
		BaseProvider: NewBaseProvider("openai", 3, time.Second),
		defaultModel: defaultModel,
	}
	if apiKey != "" {
		p.client = openai.NewClient(apiKey)
	}
	return p
}

// Complete sends system + messages to model (or the provider's default)
// and returns the assistant's full text reply.
func (p *OpenAIProvider) Complete(ctx context.Context, system string, messages []models.Message, model string) (string, models.TokenUsage, error) {
	if p.client == nil {
		return "", models.TokenUsage{}, errors.New("openai: API key not configured")
	}
	if model == "" {
		model = p.defaultModel
	}

	chatMessages := convertToOpenAIMessages(messages, system)

	var resp openai.ChatCompletionResponse
	err := p.Retry(ctx, func(err error) bool { return IsRetryable(p.wrapError(err, model)) }, func() error {
		r, callErr := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    model,
			Messages: chatMessages,
		})
		if callErr != nil {
			return callErr
		}
		resp = r
		return nil
	})
	if err != nil {
		return "", models.TokenUsage{}, p.wrapError(err, model)
	}
	if len(resp.Choices) == 0 {
		return "", models.TokenUsage{}, p.wrapError(errors.New("empty response"), model)
	}

	usage := models.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	return resp.Choices[0].Message.Content, usage, nil
}

func convertToOpenAIMessages(messages []models.Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		result = append(result, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return result
}

// wrapError classifies err into a ProviderError carrying provider/model
// context, for retry and trace-step reporting.
func (p *OpenAIProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr
	}
	return NewProviderError("openai", model, err)
}
