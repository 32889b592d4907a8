package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Limits are the hard protocol bounds from spec §4.2/§6. A zero value in
// any field falls back to the spec-mandated default.
type Limits struct {
	MaxLineLength  int           // default 1 MiB
	MaxBufferSize  int           // default 10 MiB
	MaxReadTimeout time.Duration // default 300s
}

func (l Limits) withDefaults() Limits {
	if l.MaxLineLength <= 0 {
		l.MaxLineLength = 1 << 20
	}
	if l.MaxBufferSize <= 0 {
		l.MaxBufferSize = 10 << 20
	}
	if l.MaxReadTimeout <= 0 {
		l.MaxReadTimeout = 300 * time.Second
	}
	return l
}

// Encoder writes Frames as newline-delimited JSON.
type Encoder struct {
	w  io.Writer
	mu sync.Mutex
}

// NewEncoder wraps w in a line-framed Frame encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes a single Frame followed by a newline.
func (e *Encoder) Encode(f Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return &ProtocolError{Kind: KindMalformedFrame, Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(payload); err != nil {
		return err
	}
	_, err = e.w.Write([]byte{'\n'})
	return err
}

// Decoder reads newline-delimited Frames, enforcing Limits.
//
// MaxBufferSize and MaxLineLength are deliberately decoupled from the
// underlying bufio.Reader's own internal buffer: that buffer is a fixed,
// small chunk size used only to pull bytes off the wire, never the bound
// that trips either limit. MaxBufferSize bounds bytes accumulated since the
// last frame boundary regardless of whether a newline ever arrives (spec
// §4.5/§6.1: "total bytes buffered while awaiting a frame boundary" /
// "before a newline"); MaxLineLength bounds the length of a *completed*
// line once a newline is found. Tying the line-length cap to the reader's
// chunk size (as an earlier revision did via bufio.Scanner.Buffer) made an
// unterminated flood trip the line-too-long path as soon as the chunk
// buffer filled, before the buffer limit could ever be reached.
type Decoder struct {
	r      *bufio.Reader
	limits Limits
}

// readerChunkSize is the bufio.Reader's own internal buffer size: a pure
// I/O chunking detail, unrelated to either protocol limit.
const readerChunkSize = 64 * 1024

// NewDecoder wraps r in a line-framed Frame decoder bounded by limits.
func NewDecoder(r io.Reader, limits Limits) *Decoder {
	limits = limits.withDefaults()
	return &Decoder{r: bufio.NewReaderSize(r, readerChunkSize), limits: limits}
}

// readLine accumulates bytes up to and including the next '\n', resetting
// its accumulator for every call so MaxBufferSize is enforced per frame
// boundary, not across the Decoder's lifetime (spec §4.5). It checks
// MaxBufferSize continuously as bytes arrive -- catching an unterminated
// flood the moment it crosses the limit -- and only checks MaxLineLength
// once a complete line has been assembled.
func (d *Decoder) readLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := d.r.ReadSlice('\n')
		if len(chunk) > 0 {
			buf = append(buf, chunk...)
		}
		if len(buf) > d.limits.MaxBufferSize {
			return nil, &ProtocolError{Kind: KindBufferTooLarge,
				Err: fmt.Errorf("buffered %d bytes awaiting a frame boundary, exceeding the %d byte limit", len(buf), d.limits.MaxBufferSize)}
		}
		if err == nil {
			break
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err == io.EOF {
			if len(buf) == 0 {
				return nil, io.EOF
			}
			break
		}
		return nil, err
	}

	line := bytes.TrimSuffix(buf, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) > d.limits.MaxLineLength {
		return nil, &ProtocolError{Kind: KindLineTooLong,
			Err: fmt.Errorf("line length %d exceeds the %d byte limit", len(line), d.limits.MaxLineLength)}
	}
	return line, nil
}

// Decode reads and parses the next Frame. It enforces MaxReadTimeout with
// its own timer (returning ctx.Err() instead if ctx ends first),
// MaxLineLength against each completed line, and MaxBufferSize against
// bytes accumulated since the last frame boundary.
func (d *Decoder) Decode(ctx context.Context) (Frame, error) {
	type readResult struct {
		line []byte
		err  error
	}

	resultCh := make(chan readResult, 1)
	go func() {
		line, err := d.readLine()
		resultCh <- readResult{line: line, err: err}
	}()

	timer := time.NewTimer(d.limits.MaxReadTimeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return Frame{}, res.err
		}

		var f Frame
		if err := json.Unmarshal(res.line, &f); err != nil {
			return Frame{}, &ProtocolError{Kind: KindMalformedFrame, Err: err}
		}
		return f, nil

	case <-timer.C:
		return Frame{}, &ProtocolError{Kind: KindReadTimeout}
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// EncodeLine is a convenience for tests and one-off callers that don't want
// to keep an Encoder around.
func EncodeLine(w io.Writer, f Frame) error {
	return NewEncoder(w).Encode(f)
}

// DecodeLine is a convenience single-shot decode with default limits.
func DecodeLine(ctx context.Context, r io.Reader) (Frame, error) {
	return NewDecoder(r, Limits{}).Decode(ctx)
}
