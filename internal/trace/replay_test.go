package trace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheshahq/shesha/pkg/models"
)

func buildTrace(ctx models.QueryContext, steps []models.TraceStep) *Trace {
	t := New()
	for _, s := range steps {
		t.Append(s.Type, s.Content, s.Iteration, s.TokensUsed, time.Duration(s.DurationMs)*time.Millisecond)
	}
	return t
}

func TestReplayRoundTripsWrittenTrace(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, 10, NewRedactor(nil))

	ctx := models.QueryContext{TraceID: "11111111-2222-3333-4444-555555555555", Project: "demo", Model: "test-model"}
	tr := buildTrace(ctx, []models.TraceStep{
		{Type: models.StepCodeGenerated, Iteration: 0, Content: "print(1)"},
		{Type: models.StepCodeOutput, Iteration: 0, Content: "1"},
		{Type: models.StepFinalAnswer, Iteration: 1, Content: "done"},
	})
	result := models.QueryResult{Answer: "done", Status: models.StatusSuccess, Iterations: 2, TraceID: ctx.TraceID}

	require.NoError(t, w.Write(ctx, tr, result))

	entries, err := os.ReadDir(filepath.Join(dir, ctx.Project))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	reader, err := ReadFile(filepath.Join(dir, ctx.Project, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, ctx.TraceID, reader.Header.TraceID)
	assert.Len(t, reader.Steps, 3)

	stats := NewReplayer(reader).Replay()
	assert.True(t, stats.Valid(), "errors: %v", stats.Errors)
	assert.Equal(t, 1, stats.TerminalCount)
}

func TestReplayDetectsOutOfOrderIterations(t *testing.T) {
	reader := &Reader{Steps: []models.TraceStep{
		{Type: models.StepCodeGenerated, Iteration: 1},
		{Type: models.StepCodeOutput, Iteration: 0},
	}}
	stats := NewReplayer(reader).Replay()
	assert.False(t, stats.Valid())
	assert.Contains(t, stats.Errors[0], "less than previous")
}

func TestReplayDetectsMultipleFinalAnswers(t *testing.T) {
	reader := &Reader{Steps: []models.TraceStep{
		{Type: models.StepFinalAnswer, Iteration: 0},
		{Type: models.StepFinalAnswer, Iteration: 1},
	}}
	stats := NewReplayer(reader).Replay()
	assert.False(t, stats.Valid())
	assert.Equal(t, 2, stats.TerminalCount)
}

func TestReplayDetectsUnmatchedSubcall(t *testing.T) {
	reader := &Reader{Steps: []models.TraceStep{
		{Type: models.StepSubcallRequest, Iteration: 0},
	}}
	stats := NewReplayer(reader).Replay()
	assert.False(t, stats.Valid())
	assert.Contains(t, stats.Errors[0], "unmatched subcall_request")
}

func TestReplayPairsSubcallRequestAndResponse(t *testing.T) {
	reader := &Reader{Steps: []models.TraceStep{
		{Type: models.StepSubcallRequest, Iteration: 0},
		{Type: models.StepSubcallResponse, Iteration: 0},
		{Type: models.StepFinalAnswer, Iteration: 1},
	}}
	stats := NewReplayer(reader).Replay()
	assert.True(t, stats.Valid(), "errors: %v", stats.Errors)
}

func TestReplayEmptyTraceIsInvalid(t *testing.T) {
	reader := &Reader{}
	stats := NewReplayer(reader).Replay()
	assert.False(t, stats.Valid())
}
