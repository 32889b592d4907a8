// Package engine implements the RLM Engine: the iteration loop tying the
// LLM Client, Prompt Assembly, Executor Adapter, and Trace together (spec
// §4.7).
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sheshahq/shesha/internal/adapter"
	"github.com/sheshahq/shesha/internal/llm"
	"github.com/sheshahq/shesha/internal/pool"
	"github.com/sheshahq/shesha/internal/process"
	"github.com/sheshahq/shesha/internal/prompt"
	"github.com/sheshahq/shesha/internal/sandbox"
	"github.com/sheshahq/shesha/internal/trace"
	"github.com/sheshahq/shesha/pkg/models"
)

// Config is the subset of engine configuration a Query call needs (spec
// §6.5). Zero MaxIterations, MaxSubcallDepth, ObservationCharCap and
// SubcallModel fall back to defaults; zero MaxSubcallChars and QueryTimeout
// mean no bound.
type Config struct {
	MaxIterations      int
	MaxSubcallChars    int
	MaxSubcallDepth    int
	QueryTimeout       time.Duration
	ObservationCharCap int
	Model              string
	SubcallModel       string
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10
	}
	if c.MaxSubcallDepth <= 0 {
		c.MaxSubcallDepth = 3
	}
	if c.ObservationCharCap <= 0 {
		c.ObservationCharCap = 20_000
	}
	if c.SubcallModel == "" {
		c.SubcallModel = c.Model
	}
	return c
}

// Engine ties the Pool, LLM Client, and trace persistence together to run
// one query at a time. A single Engine value is safe to call Query on
// concurrently; each call acquires its own Runner.
type Engine struct {
	Pool        *pool.Pool
	Client      llm.Client
	Config      Config
	TraceWriter *trace.Writer // optional; nil disables persistence

	// Lanes, when non-nil, admits each query's Pool.Acquire through
	// process.LaneMain and is handed to the Adapter so its sub-calls are
	// admitted through process.LaneSubcall -- keeping the two traffic
	// classes from starving each other under load (spec §5).
	Lanes *process.CommandQueue
}

// Query runs the iteration loop to completion against documents for
// question, returning a QueryResult that never propagates an error for any
// outcome the spec defines as recoverable (spec §7): the only panics this
// function lets escape are programmer misuse.
func (e *Engine) Query(ctx context.Context, documents []models.Document, question, project string) models.QueryResult {
	cfg := e.Config.withDefaults()
	traceID := uuid.New().String()
	startedAt := time.Now()

	if cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.QueryTimeout)
		defer cancel()
	}

	tr := trace.New()
	systemPrompt := prompt.BuildSystemPrompt(prompt.Options{Documents: documents, MaxSubcallChars: cfg.MaxSubcallChars})

	r, err := e.acquireRunner(ctx)
	if err != nil {
		return e.finish(project, traceID, startedAt, tr, documents, question, systemPrompt, cfg,
			models.QueryResult{Status: models.StatusError, Err: (&LoopError{Phase: PhaseStartup, Cause: err}).Error()})
	}

	if err := r.Enc.Encode(sandbox.Frame{Type: sandbox.FrameInit, Documents: documents}); err != nil {
		e.Pool.Release(r, pool.OutcomeViolation)
		return e.finish(project, traceID, startedAt, tr, documents, question, systemPrompt, cfg,
			models.QueryResult{Status: models.StatusError, Err: (&LoopError{Phase: PhaseStartup, Cause: err}).Error()})
	}

	ad := &adapter.Adapter{Client: e.Client, SubcallModel: cfg.SubcallModel, MaxSubcallChars: cfg.MaxSubcallChars, MaxSubcallDepth: cfg.MaxSubcallDepth, Trace: tr, Lanes: e.Lanes}
	conversation := []models.Message{{Role: models.RoleUser, Content: question}}
	outcome := pool.OutcomeClean

	result := e.runLoop(ctx, r, ad, tr, cfg, systemPrompt, conversation, &outcome)

	e.Pool.Release(r, outcome)
	return e.finish(project, traceID, startedAt, tr, documents, question, systemPrompt, cfg, result)
}

// acquireRunner acquires a Runner from the Pool, admitting the call through
// process.LaneMain when Lanes is configured so a burst of queries queues
// fairly against pool capacity rather than racing sub-call traffic.
func (e *Engine) acquireRunner(ctx context.Context) (*pool.Runner, error) {
	if e.Lanes == nil {
		return e.Pool.Acquire(ctx)
	}
	return process.EnqueueInLane(e.Lanes, process.LaneMain, func(taskCtx context.Context) (*pool.Runner, error) {
		return e.Pool.Acquire(taskCtx)
	}, &process.EnqueueOptions{Context: ctx})
}

func (e *Engine) runLoop(
	ctx context.Context,
	r *pool.Runner,
	ad *adapter.Adapter,
	tr *trace.Trace,
	cfg Config,
	systemPrompt string,
	conversation []models.Message,
	outcome *pool.Outcome,
) models.QueryResult {
	for i := 0; i < cfg.MaxIterations; i++ {
		reply, tokens, err := e.Client.Complete(ctx, systemPrompt, conversation, cfg.Model)
		if err != nil {
			tr.Append(models.StepError, fmt.Sprintf("llm call failed: %v", err), i, models.TokenUsage{}, 0)
			return models.QueryResult{Status: models.StatusError, Err: (&LoopError{Phase: PhaseLLMCall, Iteration: i, Cause: err}).Error()}
		}
		conversation = append(conversation, models.Message{Role: models.RoleAssistant, Content: reply})

		if answer, ok := prompt.ExtractDirectFinal(reply); ok {
			tr.Append(models.StepFinalAnswer, answer, i, tokens, 0)
			return models.QueryResult{Answer: answer, Status: models.StatusSuccess, Iterations: i + 1}
		}

		code, ok := prompt.ExtractCodeBlock(reply)
		if !ok {
			conversation = append(conversation, models.Message{Role: models.RoleUser, Content: prompt.CodeRequiredReminder})
			// The Complete call above still consumed tokens even though the
			// reply had no code block; attach them here so TotalTokens (spec
			// §3: aggregated across all LLM calls) doesn't silently drop them.
			tr.Append(models.StepError, "no code block", i, tokens, 0)
			continue
		}

		tr.Append(models.StepCodeGenerated, code, i, tokens, 0)

		execStart := time.Now()
		execResult, err := ad.Execute(ctx, r, code, i)
		execDuration := time.Since(execStart)
		if err != nil {
			var protoErr *sandbox.ProtocolError
			timedOut := errors.Is(err, context.DeadlineExceeded)
			if errors.As(err, &protoErr) || timedOut {
				*outcome = pool.OutcomeViolation
			}
			tr.Append(models.StepError, err.Error(), i, models.TokenUsage{}, execDuration)
			phase := PhaseExecute
			if timedOut {
				return models.QueryResult{Status: models.StatusError, Err: (&LoopError{Phase: phase, Iteration: i, Message: "query timeout exceeded", Cause: err}).Error()}
			}
			return models.QueryResult{Status: models.StatusError, Err: (&LoopError{Phase: phase, Iteration: i, Cause: err}).Error()}
		}

		if execResult.FinalAnswer != nil {
			tr.Append(models.StepFinalAnswer, *execResult.FinalAnswer, i, models.TokenUsage{}, execDuration)
			return models.QueryResult{Answer: *execResult.FinalAnswer, Status: models.StatusSuccess, Iterations: i + 1}
		}

		wrapped := prompt.WrapObservation(execResult, cfg.ObservationCharCap)
		conversation = append(conversation, models.Message{Role: models.RoleUser, Content: wrapped})
		tr.Append(models.StepCodeOutput, wrapped, i, models.TokenUsage{}, execDuration)
	}

	return models.QueryResult{Answer: models.MaxIterationsSentinel, Status: models.StatusMaxIterations, Iterations: cfg.MaxIterations}
}

// finish stamps timing/token totals onto result and, if a TraceWriter is
// wired, persists the redacted trace. A persistence failure is logged-only
// (spec §7, PersistenceFailure) and never alters the returned QueryResult.
func (e *Engine) finish(
	project, traceID string,
	startedAt time.Time,
	tr *trace.Trace,
	documents []models.Document,
	question, systemPrompt string,
	cfg Config,
	result models.QueryResult,
) models.QueryResult {
	result.TraceID = traceID
	result.TokensUsed = tr.TotalTokens()
	result.ExecutionTimeSecs = time.Since(startedAt).Seconds()
	result.Steps = tr.Steps()

	if e.TraceWriter != nil {
		docIDs := make([]string, len(documents))
		for i, d := range documents {
			docIDs[i] = d.Name
		}
		qctx := models.QueryContext{
			TraceID:      traceID,
			Question:     question,
			DocumentIDs:  docIDs,
			Model:        cfg.Model,
			SystemPrompt: systemPrompt,
			Project:      project,
			StartedAt:    startedAt,
		}
		_ = e.TraceWriter.Write(qctx, tr, result)
	}

	return result
}
