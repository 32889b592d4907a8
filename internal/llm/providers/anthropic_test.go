package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheshahq/shesha/pkg/models"
)

func TestNewAnthropicProviderRequiresAPIKey(t *testing.T) {
	_, err := NewAnthropicProvider(AnthropicConfig{})
	require.Error(t, err)
}

func TestNewAnthropicProviderAppliesDefaults(t *testing.T) {
	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "sk-ant-test"})
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", p.defaultModel)
	assert.Equal(t, int64(4096), p.maxTokens)
	assert.Equal(t, "anthropic", p.Name())
}

func TestConvertMessagesSkipsSystemRole(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleSystem, Content: "ignored"},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
	}
	converted := convertMessages(msgs)
	assert.Len(t, converted, 2)
}
