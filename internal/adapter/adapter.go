// Package adapter implements the Executor Adapter (spec §4.5): the
// controller-side counterpart of the sandbox protocol. It sends execute
// frames to a pooled Runner, drains its framed responses, routes reverse
// llm_query callbacks through an LLM Client, and enforces the protocol's
// hard wire limits.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sheshahq/shesha/internal/llm"
	"github.com/sheshahq/shesha/internal/pool"
	"github.com/sheshahq/shesha/internal/process"
	"github.com/sheshahq/shesha/internal/prompt"
	"github.com/sheshahq/shesha/internal/sandbox"
	"github.com/sheshahq/shesha/internal/trace"
	"github.com/sheshahq/shesha/pkg/models"
)

// Adapter routes execute() calls through one Runner for the lifetime of a
// query, and routes any llm_query callbacks it receives through Client.
type Adapter struct {
	Client          llm.Client
	SubcallModel    string
	MaxSubcallChars int

	// MaxSubcallDepth bounds how many llm_query frames a single execute()
	// call may issue (spec §1's "recurse via sub-LLM calls on demand").
	// REPL code can call llm_query repeatedly within one execute() — e.g.
	// divide-and-conquer over document chunks — and each such call is one
	// level of the recursive delegation the spec describes; beyond the
	// limit, Execute feeds back a recoverable error instead of placing
	// another LLM call. Zero means no bound.
	MaxSubcallDepth int

	Trace *trace.Trace

	// Lanes, when non-nil, admits every sub-call's Client.Complete through
	// process.LaneSubcall, so a burst of recursive llm_query calls across
	// concurrent queries cannot starve the LaneMain traffic an Engine
	// enqueues around Pool.Acquire.
	Lanes *process.CommandQueue
}

// overlengthSubcallFmt is fed back to the runner as the llm_response content
// when a sub-call's content exceeds MaxSubcallChars (spec §4.5), so the
// REPL observes a recoverable failure rather than losing the session.
const overlengthSubcallFmt = "llm_query content exceeds the %d character limit (got %d); shorten it and retry"

// exceededSubcallDepthFmt is fed back to the runner as the llm_response
// content when a single execute() call's llm_query count exceeds
// MaxSubcallDepth, so the REPL observes a recoverable failure rather than
// losing the session.
const exceededSubcallDepthFmt = "llm_query depth limit of %d exceeded for this execute() call; stop delegating further and work with what you have"

// Execute sends one execute frame to r and drains its response, routing any
// llm_query frames back through the Adapter's Client until a result frame
// arrives. iteration is the Engine's current loop index, used to label
// subcall_request/subcall_response trace steps.
//
// A returned *sandbox.ProtocolError means r violated the wire contract;
// callers must release the Runner with pool.OutcomeViolation. Any other
// non-nil error is the execute-call context ending or the provider failing
// a sub-call; the runner did not break the wire contract, though a runner
// abandoned by an expired deadline may still be mid-execution (the Engine
// releases it with pool.OutcomeViolation in that case).
func (a *Adapter) Execute(ctx context.Context, r *pool.Runner, code string, iteration int) (models.ExecutionResult, error) {
	if err := r.Enc.Encode(sandbox.Frame{Type: sandbox.FrameExecute, Code: code}); err != nil {
		return models.ExecutionResult{}, fmt.Errorf("sending execute frame: %w", err)
	}

	subcalls := 0
	for {
		frame, err := r.Dec.Decode(ctx)
		if err != nil {
			var protoErr *sandbox.ProtocolError
			if errors.As(err, &protoErr) {
				return models.ExecutionResult{Error: protoErr.Error()}, protoErr
			}
			return models.ExecutionResult{}, err
		}

		switch frame.Type {
		case sandbox.FrameResult:
			return models.ExecutionResult{
				Stdout:      frame.Stdout,
				Stderr:      frame.Stderr,
				ReturnVal:   frame.ReturnValue,
				FinalAnswer: frame.FinalAnswer,
				Error:       frame.Error,
			}, nil

		case sandbox.FrameLLMQuery:
			subcalls++
			response, tokens, err := a.runSubcall(ctx, frame.Instruction, frame.Content, iteration, subcalls)
			if err != nil {
				return models.ExecutionResult{}, fmt.Errorf("running sub-call: %w", err)
			}

			total := tokens.Total()
			if err := r.Enc.Encode(sandbox.Frame{
				Type:       sandbox.FrameLLMResponse,
				Content:    response,
				TokensUsed: &total,
			}); err != nil {
				return models.ExecutionResult{}, fmt.Errorf("sending llm_response frame: %w", err)
			}

		default:
			protoErr := &sandbox.ProtocolError{Kind: sandbox.KindMalformedFrame,
				Err: fmt.Errorf("unexpected frame type %q while awaiting result", frame.Type)}
			return models.ExecutionResult{Error: protoErr.Error()}, protoErr
		}
	}
}

// runSubcall appends the paired subcall_request/subcall_response trace
// steps and performs the sub-LLM call, enforcing MaxSubcallChars/depth and
// wrapping content under the untrusted banner before it reaches the
// provider (spec §4.5, §6.3). depth is this execute() call's 1-based count
// of llm_query frames handled so far, including this one.
func (a *Adapter) runSubcall(ctx context.Context, instruction, content string, iteration, depth int) (string, models.TokenUsage, error) {
	start := time.Now()
	a.Trace.Append(models.StepSubcallRequest, fmt.Sprintf("%s\n%s", instruction, content), iteration, models.TokenUsage{}, 0)

	if a.MaxSubcallDepth > 0 && depth > a.MaxSubcallDepth {
		errMsg := fmt.Sprintf(exceededSubcallDepthFmt, a.MaxSubcallDepth)
		a.Trace.Append(models.StepSubcallResponse, errMsg, iteration, models.TokenUsage{}, time.Since(start))
		return errMsg, models.TokenUsage{}, nil
	}

	if a.MaxSubcallChars > 0 && len(content) > a.MaxSubcallChars {
		errMsg := fmt.Sprintf(overlengthSubcallFmt, a.MaxSubcallChars, len(content))
		a.Trace.Append(models.StepSubcallResponse, errMsg, iteration, models.TokenUsage{}, time.Since(start))
		return errMsg, models.TokenUsage{}, nil
	}

	messages := []models.Message{
		{Role: models.RoleUser, Content: prompt.SubcallTemplate(instruction, content)},
	}

	reply, tokens, err := a.completeSubcall(ctx, messages)
	if err != nil {
		errMsg := fmt.Sprintf("sub-call failed: %v", err)
		a.Trace.Append(models.StepSubcallResponse, errMsg, iteration, models.TokenUsage{}, time.Since(start))
		return "", models.TokenUsage{}, err
	}

	a.Trace.Append(models.StepSubcallResponse, reply, iteration, tokens, time.Since(start))
	return reply, tokens, nil
}

// subcallResult bundles Client.Complete's return values for lane queueing,
// which only propagates a single (T, error) pair.
type subcallResult struct {
	reply  string
	tokens models.TokenUsage
}

// completeSubcall calls Client.Complete, admitting the call through
// process.LaneSubcall when Lanes is configured.
func (a *Adapter) completeSubcall(ctx context.Context, messages []models.Message) (string, models.TokenUsage, error) {
	if a.Lanes == nil {
		return a.Client.Complete(ctx, "", messages, a.SubcallModel)
	}

	result, err := process.EnqueueInLane(a.Lanes, process.LaneSubcall, func(taskCtx context.Context) (subcallResult, error) {
		reply, tokens, err := a.Client.Complete(taskCtx, "", messages, a.SubcallModel)
		return subcallResult{reply: reply, tokens: tokens}, err
	}, &process.EnqueueOptions{Context: ctx})
	if err != nil {
		return "", models.TokenUsage{}, err
	}
	return result.reply, result.tokens, nil
}
