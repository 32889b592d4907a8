package engine

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheshahq/shesha/internal/llm"
	"github.com/sheshahq/shesha/internal/pool"
	"github.com/sheshahq/shesha/internal/sandbox"
	"github.com/sheshahq/shesha/internal/sandbox/runner"
	"github.com/sheshahq/shesha/pkg/models"
)

// fakeSpawner builds in-memory Runners backed by a runner.Loop goroutine,
// mirroring internal/pool's own test spawner so the Engine's iteration
// loop can be exercised end-to-end without a real shesha-runner process.
type fakeSpawner struct {
	limits  sandbox.Limits
	spawned int32
}

func (s *fakeSpawner) Spawn(ctx context.Context) (*pool.Runner, error) {
	atomic.AddInt32(&s.spawned, 1)
	hostToRunnerR, hostToRunnerW := io.Pipe()
	runnerToHostR, runnerToHostW := io.Pipe()

	loop := runner.NewLoop(hostToRunnerR, runnerToHostW, s.limits)
	go func() { _ = loop.Run(context.Background()) }()

	return pool.NewFakeRunnerForTest(
		sandbox.NewEncoder(hostToRunnerW),
		sandbox.NewDecoder(runnerToHostR, s.limits),
	), nil
}

func newTestPool(t *testing.T) *pool.Pool {
	t.Helper()
	spawner := &fakeSpawner{limits: sandbox.Limits{MaxReadTimeout: 2 * time.Second}}
	p, err := pool.NewPool(context.Background(), spawner, 1, 2)
	require.NoError(t, err)
	t.Cleanup(p.Shutdown)
	return p
}

func TestQueryDirectFinalSkipsSandbox(t *testing.T) {
	e := &Engine{
		Pool:   newTestPool(t),
		Client: &llm.MockClient{Replies: []string{"FINAL(the answer is 42)"}},
	}

	result := e.Query(context.Background(), nil, "what is it?", "proj")
	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Equal(t, "the answer is 42", result.Answer)
	assert.Equal(t, 1, result.Iterations)
}

func TestQueryTwoStepComputeThenFinal(t *testing.T) {
	e := &Engine{
		Pool: newTestPool(t),
		Client: &llm.MockClient{Replies: []string{
			"```repl\nx = 6 * 7\n```",
			"```repl\nFINAL_VAR(\"x\")\n```",
		}},
	}

	result := e.Query(context.Background(), nil, "compute 6*7", "proj")
	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Equal(t, "42", result.Answer)
	assert.Equal(t, 2, result.Iterations)
}

func TestQueryRoutesSubcallThroughClient(t *testing.T) {
	docs := []models.Document{{Name: "doc", Content: "a long passage to summarize"}}
	e := &Engine{
		Pool: newTestPool(t),
		Client: &llm.MockClient{Replies: []string{
			"```repl\ns = llm_query(\"summarize\", context[\"doc\"]); FINAL_VAR(\"s\")\n```",
			"short summary",
		}},
	}

	result := e.Query(context.Background(), docs, "summarize doc", "proj")
	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Equal(t, "short summary", result.Answer)

	var subRequests, subResponses int
	for _, step := range result.Steps {
		switch step.Type {
		case models.StepSubcallRequest:
			subRequests++
		case models.StepSubcallResponse:
			subResponses++
		}
	}
	assert.Equal(t, 1, subRequests)
	assert.Equal(t, 1, subResponses)
}

func TestQueryRemindsOnMissingCodeBlock(t *testing.T) {
	e := &Engine{
		Pool: newTestPool(t),
		Client: &llm.MockClient{
			Replies: []string{
				"I'm thinking about it.",
				"FINAL(done)",
			},
			Usage: models.TokenUsage{PromptTokens: 10, CompletionTokens: 5},
		},
	}

	result := e.Query(context.Background(), nil, "q", "proj")
	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Equal(t, "done", result.Answer)
	assert.Equal(t, 2, result.Iterations)

	foundReminder := false
	for _, step := range result.Steps {
		if step.Type == models.StepError && step.Content == "no code block" {
			foundReminder = true
			assert.Equal(t, 15, step.TokensUsed.Total(), "the no-code-block call's tokens must still be recorded")
		}
	}
	assert.True(t, foundReminder)

	// §3: total tokens must aggregate every LLM call in the query,
	// including the one that produced no code block.
	assert.Equal(t, 30, result.TokensUsed.Total())
}

func TestQueryExhaustsMaxIterations(t *testing.T) {
	e := &Engine{
		Pool:   newTestPool(t),
		Client: &llm.MockClient{ReplyFunc: func(system string, messages []models.Message, model string) (string, error) { return "```repl\nprint(1)\n```", nil }},
		Config: Config{MaxIterations: 3},
	}

	result := e.Query(context.Background(), nil, "loop forever", "proj")
	assert.Equal(t, models.StatusMaxIterations, result.Status)
	assert.Equal(t, models.MaxIterationsSentinel, result.Answer)
	assert.Equal(t, 3, result.Iterations)
}

func TestQueryForceKillsRunnerOnProtocolViolation(t *testing.T) {
	// A runner whose read timeout is far shorter than its stdout write
	// delay reproduces a protocol violation (spec §4.2/§4.5): the Decode
	// call times out waiting on a frame that never arrives in time.
	spawner := &fakeSpawner{limits: sandbox.Limits{MaxReadTimeout: 50 * time.Millisecond}}
	p, err := pool.NewPool(context.Background(), spawner, 1, 1)
	require.NoError(t, err)
	t.Cleanup(p.Shutdown)

	e := &Engine{
		Pool: p,
		Client: &llm.MockClient{Replies: []string{
			"```repl\nvar start = Date.now(); while (Date.now() - start < 300) {}\n```",
		}},
	}

	result := e.Query(context.Background(), nil, "busy-loop", "proj")
	assert.Equal(t, models.StatusError, result.Status)
	assert.NotEmpty(t, result.Err)
}
