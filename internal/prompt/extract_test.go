package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCodeBlockReturnsFirstBlock(t *testing.T) {
	reply := "some prose\n```" + CodeFence + "\nprint(1)\n```\nmore prose\n```" + CodeFence + "\nprint(2)\n```"
	code, ok := ExtractCodeBlock(reply)
	assert.True(t, ok)
	assert.Equal(t, "print(1)", code)
}

func TestExtractCodeBlockMissingReturnsFalse(t *testing.T) {
	_, ok := ExtractCodeBlock("just some prose, no fences here")
	assert.False(t, ok)
}

func TestExtractDirectFinalMatchesBareDirective(t *testing.T) {
	answer, ok := ExtractDirectFinal(`FINAL("hello")`)
	assert.True(t, ok)
	assert.Equal(t, "hello", answer)
}

func TestExtractDirectFinalIgnoresFinalInsideCodeBlock(t *testing.T) {
	reply := "```" + CodeFence + "\nFINAL(\"nope\")\n```"
	_, ok := ExtractDirectFinal(reply)
	assert.False(t, ok)
}

func TestExtractDirectFinalMissingReturnsFalse(t *testing.T) {
	_, ok := ExtractDirectFinal("no directive here")
	assert.False(t, ok)
}
