package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sheshahq/shesha/pkg/models"
)

// Reader parses a trace JSONL file back into its header, steps, and
// summary, without interpreting their content.
type Reader struct {
	Header  headerLine
	Steps   []models.TraceStep
	Summary summaryLine
}

// ReadFile parses the JSONL file at path.
func ReadFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses a JSONL trace stream, dispatching each line by its "type"
// discriminator.
func Read(r io.Reader) (*Reader, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

	result := &Reader{}
	seenHeader, seenSummary := false, false

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var probe struct {
			Type lineType `json:"type"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			return nil, fmt.Errorf("parsing trace line: %w", err)
		}

		switch probe.Type {
		case lineHeader:
			if err := json.Unmarshal(line, &result.Header); err != nil {
				return nil, fmt.Errorf("parsing header line: %w", err)
			}
			seenHeader = true
		case lineStep:
			var step stepLine
			if err := json.Unmarshal(line, &step); err != nil {
				return nil, fmt.Errorf("parsing step line: %w", err)
			}
			result.Steps = append(result.Steps, step.TraceStep)
		case lineSummary:
			if err := json.Unmarshal(line, &result.Summary); err != nil {
				return nil, fmt.Errorf("parsing summary line: %w", err)
			}
			seenSummary = true
		default:
			return nil, fmt.Errorf("unrecognized trace line type %q", probe.Type)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning trace: %w", err)
	}
	if !seenHeader {
		return nil, fmt.Errorf("trace missing header line")
	}
	if !seenSummary {
		return nil, fmt.Errorf("trace missing summary line")
	}
	return result, nil
}

// ReplayStats is the outcome of validating a parsed trace against the
// invariants of spec.md §3/§8: steps append-only and iteration-ordered,
// at most one terminal step, sub-call requests/responses paired.
type ReplayStats struct {
	StepCount     int
	FirstIter     int
	LastIter      int
	TerminalCount int
	Errors        []string
}

// Valid reports whether the replay found no invariant violations.
func (s *ReplayStats) Valid() bool {
	return len(s.Errors) == 0
}

// Replayer validates a parsed trace's step sequence.
type Replayer struct {
	reader *Reader
}

// NewReplayer wraps a parsed Reader for validation.
func NewReplayer(reader *Reader) *Replayer {
	return &Replayer{reader: reader}
}

// Replay walks the trace's steps and checks spec.md §3/§8 ordering
// invariants, returning ReplayStats describing what it found.
func (r *Replayer) Replay() *ReplayStats {
	stats := &ReplayStats{StepCount: len(r.reader.Steps)}
	if len(r.reader.Steps) == 0 {
		stats.Errors = append(stats.Errors, "trace has no steps")
		return stats
	}

	stats.FirstIter = r.reader.Steps[0].Iteration
	lastIter := stats.FirstIter

	pendingSubcall := false
	for i, step := range r.reader.Steps {
		if step.Iteration < lastIter {
			stats.Errors = append(stats.Errors, fmt.Sprintf("step %d: iteration %d is less than previous %d", i, step.Iteration, lastIter))
		}
		lastIter = step.Iteration

		switch step.Type {
		case models.StepSubcallRequest:
			if pendingSubcall {
				stats.Errors = append(stats.Errors, fmt.Sprintf("step %d: subcall_request with another already pending", i))
			}
			pendingSubcall = true
		case models.StepSubcallResponse:
			if !pendingSubcall {
				stats.Errors = append(stats.Errors, fmt.Sprintf("step %d: subcall_response with no pending subcall_request", i))
			}
			pendingSubcall = false
		case models.StepFinalAnswer:
			stats.TerminalCount++
		case models.StepError:
			// Error steps are not counted as terminal: a non-fatal error
			// step (e.g. no code block) may be followed by further steps.
		}
	}
	stats.LastIter = lastIter

	if stats.TerminalCount > 1 {
		stats.Errors = append(stats.Errors, fmt.Sprintf("trace has %d final_answer steps, expected at most 1", stats.TerminalCount))
	}
	if pendingSubcall {
		stats.Errors = append(stats.Errors, "trace ends with an unmatched subcall_request")
	}

	return stats
}
