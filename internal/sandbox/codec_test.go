package sandbox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(Frame{Type: FrameExecute, Code: "1 + 1"}))

	dec := NewDecoder(&buf, Limits{})
	f, err := dec.Decode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FrameExecute, f.Type)
	assert.Equal(t, "1 + 1", f.Code)
}

func TestDecodeRejectsOversizedLine(t *testing.T) {
	oversized := strings.Repeat("a", 100)
	line := `{"type":"execute","code":"` + oversized + `"}` + "\n"

	dec := NewDecoder(strings.NewReader(line), Limits{MaxLineLength: 10})
	_, err := dec.Decode(context.Background())
	require.Error(t, err)

	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, KindLineTooLong, protoErr.Kind)
}

func TestDecodeRejectsLineExactlyOneByteOverLimit(t *testing.T) {
	// A line whose content alone is MaxLineLength bytes must still fit once
	// wrapped in the smallest possible JSON frame, so pad the limit out
	// past the frame's fixed overhead and grow the payload by exactly one
	// byte past that to land precisely on the spec §8 boundary.
	const limit = 64
	fits := `{"action":"execute","code":"` + strings.Repeat("a", limit-len(`{"action":"execute","code":""}`)) + `"}`
	require.Len(t, fits, limit)
	tooLong := fits[:len(fits)-1] + "a" + fits[len(fits)-1:]
	require.Len(t, tooLong, limit+1)

	dec := NewDecoder(strings.NewReader(fits+"\n"), Limits{MaxLineLength: limit})
	_, err := dec.Decode(context.Background())
	require.NoError(t, err)

	dec = NewDecoder(strings.NewReader(tooLong+"\n"), Limits{MaxLineLength: limit})
	_, err = dec.Decode(context.Background())
	require.Error(t, err)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, KindLineTooLong, protoErr.Kind)
}

func TestDecodeRejectsOversizedUnterminatedBuffer(t *testing.T) {
	// No newline anywhere in the stream: MaxBufferSize must trip while still
	// awaiting the frame boundary, independent of line length (spec §4.5/§6.1).
	flood := strings.Repeat("a", 50)
	dec := NewDecoder(strings.NewReader(flood), Limits{MaxBufferSize: 10, MaxLineLength: 5})
	_, err := dec.Decode(context.Background())
	require.Error(t, err)

	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, KindBufferTooLarge, protoErr.Kind)
}

func TestDecodeBufferLimitResetsPerFrame(t *testing.T) {
	// Each frame line is well under MaxBufferSize on its own, but five of
	// them together exceed it; MaxBufferSize bounds bytes buffered while
	// awaiting one frame boundary, not bytes read over the Decoder's whole
	// lifetime, so every frame here must still decode cleanly.
	const frame = `{"type":"execute"}` + "\n"
	require.Less(t, len(frame), 25)
	require.Greater(t, 5*len(frame), 25)

	dec := NewDecoder(strings.NewReader(strings.Repeat(frame, 5)), Limits{MaxBufferSize: 25})
	for i := 0; i < 5; i++ {
		f, err := dec.Decode(context.Background())
		require.NoError(t, err)
		assert.Equal(t, FrameExecute, f.Type)
	}
}

func TestDecodeRejectsMalformedFrame(t *testing.T) {
	dec := NewDecoder(strings.NewReader("not json\n"), Limits{})
	_, err := dec.Decode(context.Background())
	require.Error(t, err)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, KindMalformedFrame, protoErr.Kind)
}

// blockingReader never returns, simulating a stalled runner.
type blockingReader struct{}

func (blockingReader) Read(p []byte) (int, error) {
	select {}
}

func TestDecodeEnforcesReadTimeout(t *testing.T) {
	dec := NewDecoder(blockingReader{}, Limits{MaxReadTimeout: 10 * time.Millisecond})
	_, err := dec.Decode(context.Background())
	require.Error(t, err)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, KindReadTimeout, protoErr.Kind)
}

func TestDecodeReturnsEOFAtStreamEnd(t *testing.T) {
	dec := NewDecoder(strings.NewReader(""), Limits{})
	_, err := dec.Decode(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.EOF))
}
