package providers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sheshahq/shesha/pkg/models"
)

// AnthropicProvider is a synchronous Claude completion client.
type AnthropicProvider struct {
	BaseProvider
	client       anthropic.Client
	defaultModel string
	maxTokens    int64
}

// AnthropicConfig holds configuration for creating an AnthropicProvider.
type AnthropicConfig struct {
	// APIKey is the Anthropic API authentication key (required).
	APIKey string

	// BaseURL overrides the default Anthropic API base URL (optional).
	BaseURL string

	// MaxRetries sets the maximum retry attempts for transient failures.
	// Default: 3.
	MaxRetries int

	// RetryDelay sets the base delay between retry attempts. Default: 1s.
	RetryDelay time.Duration

	// DefaultModel sets the model used when a call doesn't specify one.
	DefaultModel string

	// MaxTokens bounds each completion's output length. Default: 4096.
	MaxTokens int64
}

// NewAnthropicProvider builds an AnthropicProvider, applying defaults for
// optional fields and validating that an API key was supplied.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		BaseProvider: NewBaseProvider("anthropic", config.MaxRetries, config.RetryDelay),
		client:       anthropic.NewClient(options...),
		defaultModel: config.DefaultModel,
		maxTokens:    config.MaxTokens,
	}, nil
}

// Complete sends system + messages to model (falling back to the
// provider's default model when empty) and returns the assistant's full
// text reply. Transient failures are retried with linear backoff via
// BaseProvider.Retry.
func (p *AnthropicProvider) Complete(ctx context.Context, system string, messages []models.Message, model string) (string, models.TokenUsage, error) {
	if model == "" {
		model = p.defaultModel
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: p.maxTokens,
		Messages:  convertMessages(messages),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	var resp *anthropic.Message
	err := p.Retry(ctx, func(err error) bool { return IsRetryable(p.wrapError(err, model)) }, func() error {
		r, callErr := p.client.Messages.New(ctx, params)
		if callErr != nil {
			return callErr
		}
		resp = r
		return nil
	})
	if err != nil {
		return "", models.TokenUsage{}, p.wrapError(err, model)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	usage := models.TokenUsage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}
	return text.String(), usage, nil
}

func convertMessages(messages []models.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(block))
		} else {
			result = append(result, anthropic.NewUserMessage(block))
		}
	}
	return result
}

// wrapError classifies err into a ProviderError carrying provider/model
// context, for retry and trace-step reporting.
func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr
	}
	return NewProviderError("anthropic", model, err)
}
