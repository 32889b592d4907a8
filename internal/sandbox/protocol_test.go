package sandbox

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostOriginatedFramesUseActionDiscriminator(t *testing.T) {
	cases := []Frame{
		{Type: FrameInit},
		{Type: FrameExecute, Code: "1 + 1"},
		{Type: FrameLLMResponse, Content: "reply"},
		{Type: FrameShutdown},
	}
	for _, f := range cases {
		raw, err := json.Marshal(f)
		require.NoError(t, err)

		var generic map[string]any
		require.NoError(t, json.Unmarshal(raw, &generic))
		assert.Equal(t, string(f.Type), generic["action"])
		_, hasType := generic["type"]
		assert.False(t, hasType, "host-originated frame %q must not carry a type key", f.Type)
	}
}

func TestRunnerOriginatedFramesUseTypeDiscriminator(t *testing.T) {
	cases := []Frame{
		{Type: FrameResult, Stdout: "out"},
		{Type: FrameLLMQuery, Instruction: "summarize", Content: "text"},
	}
	for _, f := range cases {
		raw, err := json.Marshal(f)
		require.NoError(t, err)

		var generic map[string]any
		require.NoError(t, json.Unmarshal(raw, &generic))
		assert.Equal(t, string(f.Type), generic["type"])
		_, hasAction := generic["action"]
		assert.False(t, hasAction, "runner-originated frame %q must not carry an action key", f.Type)
	}
}

func TestLLMResponseFrameTransmitsTokensUsed(t *testing.T) {
	tokens := 42
	raw, err := json.Marshal(Frame{Type: FrameLLMResponse, Content: "reply", TokensUsed: &tokens})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"llm_response","content":"reply","tokens_used":42}`, string(raw))

	var decoded Frame
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.NotNil(t, decoded.TokensUsed)
	assert.Equal(t, 42, *decoded.TokensUsed)
	assert.Equal(t, "reply", decoded.Content)
}

func TestResultFrameRoundTripsJSONReturnValue(t *testing.T) {
	f := Frame{Type: FrameResult, ReturnValue: json.RawMessage(`{"a":1}`)}
	raw, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"result","return_value":{"a":1}}`, string(raw))

	var decoded Frame
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.JSONEq(t, `{"a":1}`, string(decoded.ReturnValue))
}
