package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheshahq/shesha/pkg/models"
)

type stubSubCaller struct {
	response string
	err      error
	calls    []string
}

func (s *stubSubCaller) SubCall(ctx context.Context, instruction, content string) (string, error) {
	s.calls = append(s.calls, instruction+"|"+content)
	return s.response, s.err
}

func docs(pairs ...string) []models.Document {
	out := make([]models.Document, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, models.Document{Name: pairs[i], Content: pairs[i+1]})
	}
	return out
}

func TestExecuteFinalReturnsAnswer(t *testing.T) {
	host, err := NewHost(docs("d", "hello"), nil)
	require.NoError(t, err)

	result := host.Execute(`FINAL(context["d"])`)
	require.NoError(t, result.Err)
	require.NotNil(t, result.FinalAnswer)
	assert.Equal(t, "hello", *result.FinalAnswer)
}

func TestExecutePersistsVariablesAcrossCalls(t *testing.T) {
	host, err := NewHost(docs("n", "42"), nil)
	require.NoError(t, err)

	first := host.Execute(`doubled = parseInt(context["n"]) * 2; print(doubled)`)
	require.NoError(t, first.Err)
	assert.Equal(t, "84\n", first.Stdout)

	second := host.Execute(`FINAL_VAR("doubled")`)
	require.NoError(t, second.Err)
	require.NotNil(t, second.FinalAnswer)
	assert.Equal(t, "84", *second.FinalAnswer)
}

func TestExecuteReturnValuePreservesJSONStructure(t *testing.T) {
	host, err := NewHost(docs(), nil)
	require.NoError(t, err)

	result := host.Execute(`({a: 1, b: [2, 3]})`)
	require.NoError(t, result.Err)
	assert.JSONEq(t, `{"a":1,"b":[2,3]}`, string(result.ReturnValue))
}

func TestExecuteReturnValueScalar(t *testing.T) {
	host, err := NewHost(docs(), nil)
	require.NoError(t, err)

	result := host.Execute(`42`)
	require.NoError(t, result.Err)
	assert.Equal(t, "42", string(result.ReturnValue))
}

func TestExecuteCapturesRuntimeError(t *testing.T) {
	host, err := NewHost(docs(), nil)
	require.NoError(t, err)

	result := host.Execute(`throw new Error("boom")`)
	require.Error(t, result.Err)
	assert.Nil(t, result.FinalAnswer)
}

func TestLLMQueryRoutesThroughSubCaller(t *testing.T) {
	stub := &stubSubCaller{response: "short"}
	host, err := NewHost(docs("doc", "long text"), stub)
	require.NoError(t, err)

	result := host.Execute(`s = llm_query("summarize", context["doc"]); FINAL_VAR("s")`)
	require.NoError(t, result.Err)
	require.NotNil(t, result.FinalAnswer)
	assert.Equal(t, "short", *result.FinalAnswer)
	require.Len(t, stub.calls, 1)
	assert.Equal(t, "summarize|long text", stub.calls[0])
}

func TestLLMQueryWithoutSubCallerReturnsError(t *testing.T) {
	host, err := NewHost(docs(), nil)
	require.NoError(t, err)

	result := host.Execute(`llm_query("x", "y")`)
	assert.Error(t, result.Err)
	assert.Nil(t, result.FinalAnswer)
}

func TestMarshalDocumentInventoryPreservesOrder(t *testing.T) {
	out, err := MarshalDocumentInventory(docs("a", "1", "b", "22"))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"a","size":1},{"name":"b","size":2}]`, string(out))
}
