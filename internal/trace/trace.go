package trace

import (
	"sync"
	"time"

	"github.com/sheshahq/shesha/pkg/models"
)

// Trace is the append-only record of every step in one query, owned
// exclusively by the Engine instance running that query (spec §4.7: no
// external writers).
type Trace struct {
	mu    sync.Mutex
	steps []models.TraceStep
}

// New returns an empty Trace.
func New() *Trace {
	return &Trace{}
}

// Append adds a step. Iteration numbers are the caller's responsibility to
// keep monotonically non-decreasing (spec §3 invariant).
func (t *Trace) Append(stepType models.TraceStepType, content string, iteration int, tokens models.TokenUsage, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, models.TraceStep{
		Type:       stepType,
		Iteration:  iteration,
		Timestamp:  time.Now(),
		Content:    content,
		TokensUsed: tokens,
		DurationMs: duration.Milliseconds(),
	})
}

// Steps returns a copy of the steps appended so far, in append order.
func (t *Trace) Steps() []models.TraceStep {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.TraceStep, len(t.steps))
	copy(out, t.steps)
	return out
}

// TotalTokens sums TokensUsed across every step that carries it.
func (t *Trace) TotalTokens() models.TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total models.TokenUsage
	for _, s := range t.steps {
		total = total.Add(s.TokensUsed)
	}
	return total
}

// Redacted returns a new Trace whose step contents have been passed
// through r. The original Trace is untouched; redaction is idempotent
// (redacting an already-redacted Trace is a no-op per spec §8).
func (t *Trace) Redacted(r *Redactor) *Trace {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := &Trace{steps: make([]models.TraceStep, len(t.steps))}
	for i, s := range t.steps {
		redacted := s
		redacted.Content = r.Redact(s.Content)
		out.steps[i] = redacted
	}
	return out
}
