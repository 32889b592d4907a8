package prompt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sheshahq/shesha/pkg/models"
)

func TestWrapObservationOrdersAndLabelsSections(t *testing.T) {
	out := WrapObservation(models.ExecutionResult{
		Stdout:    "84",
		Stderr:    "warn",
		ReturnVal: json.RawMessage("84"),
		Error:     "boom",
	}, 0)

	stdoutIdx := strings.Index(out, "STDOUT:")
	stderrIdx := strings.Index(out, "STDERR:")
	returnIdx := strings.Index(out, "RETURN:")
	errorIdx := strings.Index(out, "ERROR:")

	assert.True(t, stdoutIdx < stderrIdx)
	assert.True(t, stderrIdx < returnIdx)
	assert.True(t, returnIdx < errorIdx)
}

func TestWrapObservationWrapsSectionsUnderUntrustedBanner(t *testing.T) {
	out := WrapObservation(models.ExecutionResult{
		Stdout:    "84",
		Stderr:    "warn",
		ReturnVal: json.RawMessage("84"),
		Error:     "boom",
	}, 0)

	assert.Equal(t, 4, strings.Count(out, untrustedOpen))
	assert.Equal(t, 4, strings.Count(out, untrustedClose))
	stdoutIdx := strings.Index(out, "STDOUT:")
	bannerIdx := strings.Index(out, untrustedOpen)
	assert.True(t, stdoutIdx >= 0 && bannerIdx > stdoutIdx)
}

func TestWrapObservationOmitsEmptySections(t *testing.T) {
	out := WrapObservation(models.ExecutionResult{Stdout: "hi"}, 0)
	assert.Contains(t, out, "STDOUT:")
	assert.NotContains(t, out, "STDERR:")
	assert.NotContains(t, out, "RETURN:")
	assert.NotContains(t, out, "ERROR:")
}

func TestWrapObservationHandlesNoOutput(t *testing.T) {
	out := WrapObservation(models.ExecutionResult{}, 0)
	assert.Equal(t, "(no output)", out)
}

func TestWrapObservationTruncatesOverflow(t *testing.T) {
	out := WrapObservation(models.ExecutionResult{Stdout: strings.Repeat("x", 100)}, 20)
	assert.LessOrEqual(t, len(out), 20)
	assert.Contains(t, out, TruncationMarker)
}
