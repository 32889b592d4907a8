package adapter

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheshahq/shesha/internal/llm"
	"github.com/sheshahq/shesha/internal/pool"
	"github.com/sheshahq/shesha/internal/sandbox"
	"github.com/sheshahq/shesha/internal/sandbox/runner"
	"github.com/sheshahq/shesha/internal/trace"
	"github.com/sheshahq/shesha/pkg/models"
)

// newFakeRunner wires a pool.Runner to an in-process runner.Loop over
// in-memory pipes, so Adapter tests exercise the real protocol codec
// without spawning a child process.
func newFakeRunner(t *testing.T, docs []models.Document) *pool.Runner {
	t.Helper()
	limits := sandbox.Limits{MaxReadTimeout: 2 * time.Second}
	hostToRunnerR, hostToRunnerW := io.Pipe()
	runnerToHostR, runnerToHostW := io.Pipe()

	loop := runner.NewLoop(hostToRunnerR, runnerToHostW, limits)
	go func() { _ = loop.Run(context.Background()) }()

	enc := sandbox.NewEncoder(hostToRunnerW)
	require.NoError(t, enc.Encode(sandbox.Frame{Type: sandbox.FrameInit, Documents: docs}))

	r := pool.NewFakeRunnerForTest(enc, sandbox.NewDecoder(runnerToHostR, limits))
	t.Cleanup(func() {
		_ = hostToRunnerW.Close()
		_ = runnerToHostW.Close()
	})
	return r
}

func TestAdapterExecuteReturnsFinalAnswer(t *testing.T) {
	r := newFakeRunner(t, []models.Document{{Name: "d", Content: "hello"}})
	a := &Adapter{Client: &llm.MockClient{}, Trace: trace.New()}

	result, err := a.Execute(context.Background(), r, `FINAL(context["d"])`, 0)
	require.NoError(t, err)
	require.NotNil(t, result.FinalAnswer)
	assert.Equal(t, "hello", *result.FinalAnswer)
}

func TestAdapterExecuteRoutesSubcallThroughClient(t *testing.T) {
	r := newFakeRunner(t, []models.Document{{Name: "doc", Content: "long text"}})
	mock := &llm.MockClient{Replies: []string{"short"}}
	tr := trace.New()
	a := &Adapter{Client: mock, MaxSubcallChars: 1000, Trace: tr}

	result, err := a.Execute(context.Background(), r, `s = llm_query("summarize", context["doc"]); FINAL_VAR("s")`, 0)
	require.NoError(t, err)
	require.NotNil(t, result.FinalAnswer)
	assert.Equal(t, "short", *result.FinalAnswer)

	require.Len(t, mock.Calls, 1)
	assert.Contains(t, mock.Calls[0].Messages[0].Content, "summarize")
	assert.Contains(t, mock.Calls[0].Messages[0].Content, "long text")

	steps := tr.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, models.StepSubcallRequest, steps[0].Type)
	assert.Equal(t, models.StepSubcallResponse, steps[1].Type)
	assert.Equal(t, "short", steps[1].Content)
}

func TestAdapterExecuteRejectsOverlengthSubcall(t *testing.T) {
	r := newFakeRunner(t, []models.Document{{Name: "doc", Content: "0123456789"}})
	mock := &llm.MockClient{Replies: []string{"should not be used"}}
	a := &Adapter{Client: mock, MaxSubcallChars: 5, Trace: trace.New()}

	result, err := a.Execute(context.Background(), r, `s = llm_query("summarize", context["doc"]); FINAL_VAR("s")`, 0)
	require.NoError(t, err)
	require.NotNil(t, result.FinalAnswer)
	assert.Contains(t, *result.FinalAnswer, "exceeds the 5 character limit")
	assert.Empty(t, mock.Calls)
}

func TestAdapterExecuteRejectsSubcallBeyondMaxDepth(t *testing.T) {
	r := newFakeRunner(t, []models.Document{{Name: "doc", Content: "chunk"}})
	mock := &llm.MockClient{Replies: []string{"first"}}
	a := &Adapter{Client: mock, MaxSubcallDepth: 1, Trace: trace.New()}

	code := `
a = llm_query("summarize", context["doc"]);
b = llm_query("summarize again", a);
FINAL_VAR("b")
`
	result, err := a.Execute(context.Background(), r, code, 0)
	require.NoError(t, err)
	require.NotNil(t, result.FinalAnswer)
	assert.Contains(t, *result.FinalAnswer, "llm_query depth limit of 1 exceeded")

	// Only the first (within-limit) sub-call reached the provider.
	require.Len(t, mock.Calls, 1)
	assert.Contains(t, mock.Calls[0].Messages[0].Content, "summarize")
}

func TestAdapterExecutePropagatesProtocolError(t *testing.T) {
	hostToRunnerR, hostToRunnerW := io.Pipe()
	runnerToHostR, runnerToHostW := io.Pipe()
	defer hostToRunnerW.Close()

	enc := sandbox.NewEncoder(hostToRunnerW)
	dec := sandbox.NewDecoder(runnerToHostR, sandbox.Limits{MaxReadTimeout: 200 * time.Millisecond})
	r := pool.NewFakeRunnerForTest(enc, dec)

	// Never write a response; the decoder's read timeout fires as a
	// ProtocolError.
	defer runnerToHostW.Close()

	a := &Adapter{Client: &llm.MockClient{}, Trace: trace.New()}
	_, err := a.Execute(context.Background(), r, `print(1)`, 0)
	require.Error(t, err)
	assert.ErrorAs(t, err, new(*sandbox.ProtocolError))
}
