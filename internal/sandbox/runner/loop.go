package runner

import (
	"context"
	"fmt"
	"io"

	"github.com/sheshahq/shesha/internal/sandbox"
	"github.com/sheshahq/shesha/pkg/models"
)

// streamSubCaller implements SubCaller by writing an llm_query frame to
// the host and blocking on responseCh for the matching llm_response. The
// runner never has more than one outstanding sub-call (spec §4.4), so a
// single unbuffered channel per Loop is sufficient.
type streamSubCaller struct {
	enc        *sandbox.Encoder
	responseCh chan string
}

func (s *streamSubCaller) SubCall(ctx context.Context, instruction, content string) (string, error) {
	if err := s.enc.Encode(sandbox.Frame{
		Type:        sandbox.FrameLLMQuery,
		Instruction: instruction,
		Content:     content,
	}); err != nil {
		return "", fmt.Errorf("emitting llm_query: %w", err)
	}

	select {
	case resp := <-s.responseCh:
		return resp, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Loop drives one runner process's lifetime: it reads init, then repeated
// execute frames (optionally interleaved with llm_response replies to its
// own llm_query), until shutdown or the stream closes.
//
// A single goroutine owns the Decoder for the Loop's entire lifetime and
// publishes every decoded frame to frames/readErr; Run and the in-flight
// execute handler both consume from that single feed, so the underlying
// stream is never read from two goroutines at once.
type Loop struct {
	enc     *sandbox.Encoder
	frames  chan sandbox.Frame
	readErr chan error
}

// NewLoop wraps r/w as the runner's protocol stream and starts the reader
// pump immediately.
func NewLoop(r io.Reader, w io.Writer, limits sandbox.Limits) *Loop {
	l := &Loop{
		enc:     sandbox.NewEncoder(w),
		frames:  make(chan sandbox.Frame),
		readErr: make(chan error, 1),
	}

	dec := sandbox.NewDecoder(r, limits)
	go func() {
		for {
			frame, err := dec.Decode(context.Background())
			if err != nil {
				l.readErr <- err
				return
			}
			l.frames <- frame
		}
	}()

	return l
}

// nextFrame waits for the next frame, read error, or context cancellation.
func (l *Loop) nextFrame(ctx context.Context) (sandbox.Frame, error) {
	select {
	case f := <-l.frames:
		return f, nil
	case err := <-l.readErr:
		return sandbox.Frame{}, err
	case <-ctx.Done():
		return sandbox.Frame{}, ctx.Err()
	}
}

// Run blocks until the stream closes, shutdown is received, or ctx is
// cancelled. It expects the first frame to be init; any other first frame
// is a protocol error.
func (l *Loop) Run(ctx context.Context) error {
	initFrame, err := l.nextFrame(ctx)
	if err != nil {
		return fmt.Errorf("awaiting init: %w", err)
	}
	if initFrame.Type != sandbox.FrameInit {
		return &sandbox.ProtocolError{Kind: sandbox.KindMalformedFrame,
			Err: fmt.Errorf("expected init frame, got %q", initFrame.Type)}
	}

	subCaller := &streamSubCaller{enc: l.enc, responseCh: make(chan string)}
	host, err := NewHost(initFrame.Documents, subCaller)
	if err != nil {
		return fmt.Errorf("constructing host: %w", err)
	}

	for {
		frame, err := l.nextFrame(ctx)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		switch frame.Type {
		case sandbox.FrameExecute:
			result := l.runExecuteWithSubcalls(ctx, host, subCaller, frame.Code)
			if err := l.enc.Encode(result.ToFrame()); err != nil {
				return err
			}
		case sandbox.FrameShutdown:
			return nil
		case sandbox.FrameLLMResponse:
			// No sub-call was outstanding; a response with nothing
			// awaiting it is a protocol violation from the host side.
			return &sandbox.ProtocolError{Kind: sandbox.KindMalformedFrame,
				Err: fmt.Errorf("llm_response with no outstanding llm_query")}
		default:
			return &sandbox.ProtocolError{Kind: sandbox.KindMalformedFrame,
				Err: fmt.Errorf("unexpected frame type %q", frame.Type)}
		}
	}
}

// runExecuteWithSubcalls runs code on its own goroutine while this
// goroutine keeps pulling from the shared frame feed so a nested
// llm_query's blocking wait for llm_response can be satisfied. Per spec
// §4.4/§9 the runner never has more than one outstanding llm_query, so the
// only frame type expected here is llm_response.
func (l *Loop) runExecuteWithSubcalls(ctx context.Context, host *Host, subCaller *streamSubCaller, code string) ExecResult {
	execDone := make(chan ExecResult, 1)
	go func() {
		execDone <- host.Execute(code)
	}()

	for {
		select {
		case result := <-execDone:
			return result
		default:
		}

		select {
		case result := <-execDone:
			return result
		case frame := <-l.frames:
			if frame.Type != sandbox.FrameLLMResponse {
				return ExecResult{Err: fmt.Errorf("unexpected frame %q mid-execute", frame.Type)}
			}
			subCaller.responseCh <- frame.Content
		case err := <-l.readErr:
			return ExecResult{Err: fmt.Errorf("reading during execute: %w", err)}
		case <-ctx.Done():
			return ExecResult{Err: ctx.Err()}
		}
	}
}

// DocumentNames returns the names of the given documents in order.
func DocumentNames(docs []models.Document) []string {
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Name
	}
	return names
}
