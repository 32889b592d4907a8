package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sheshahq/shesha/pkg/models"
)

// lineType discriminates the three JSONL record shapes spec §6.4 defines.
type lineType string

const (
	lineHeader  lineType = "header"
	lineStep    lineType = "step"
	lineSummary lineType = "summary"
)

type headerLine struct {
	Type    lineType `json:"type"`
	TraceID string   `json:"trace_id"`
	Project string   `json:"project"`
	Model   string   `json:"model"`
}

type stepLine struct {
	Type lineType `json:"type"`
	models.TraceStep
}

type summaryLine struct {
	Type              lineType          `json:"type"`
	Answer            string            `json:"answer"`
	Status            models.QueryStatus `json:"status"`
	TotalIterations   int               `json:"total_iterations"`
	TotalTokens       models.TokenUsage `json:"total_tokens"`
	TotalDurationMs   int64             `json:"total_duration_ms"`
}

// Writer persists redacted traces as one JSONL file per query under
// Directory, enforcing a retention cap on the number of trace files kept.
type Writer struct {
	Directory        string
	MaxTracesPerProj int
	Redactor         *Redactor
}

// NewWriter builds a Writer. maxTraces <= 0 falls back to the spec default
// of 50.
func NewWriter(directory string, maxTraces int, redactor *Redactor) *Writer {
	if maxTraces <= 0 {
		maxTraces = 50
	}
	if redactor == nil {
		redactor = NewRedactor(nil)
	}
	return &Writer{Directory: directory, MaxTracesPerProj: maxTraces, Redactor: redactor}
}

// Write redacts t and persists it as a JSONL file under Directory/<project>,
// then enforces retention scoped to that project's subdirectory. Partitioning
// storage by project is what makes `max_traces_per_project` (spec §6.5) a
// per-project cap rather than a shared one: a project producing a lot of
// trace volume evicts only its own older traces, never another project's
// (spec §6.4 "configurable maximum per project"). Persistence failures are
// non-fatal per spec §7 (PersistenceFailure): they are returned to the
// caller to log, never propagated into the QueryResult.
func (w *Writer) Write(ctx models.QueryContext, t *Trace, result models.QueryResult) error {
	projectDir := filepath.Join(w.Directory, projectDirName(ctx.Project))
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return fmt.Errorf("creating trace directory: %w", err)
	}

	redacted := t.Redacted(w.Redactor)
	path := filepath.Join(projectDir, Filename(ctx.TraceID, time.Now()))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating trace file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)

	if err := enc.Encode(headerLine{Type: lineHeader, TraceID: ctx.TraceID, Project: ctx.Project, Model: ctx.Model}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, step := range redacted.Steps() {
		if err := enc.Encode(stepLine{Type: lineStep, TraceStep: step}); err != nil {
			return fmt.Errorf("writing step: %w", err)
		}
	}
	if err := enc.Encode(summaryLine{
		Type:            lineSummary,
		Answer:          w.Redactor.Redact(result.Answer),
		Status:          result.Status,
		TotalIterations: result.Iterations,
		TotalTokens:     result.TokensUsed,
		TotalDurationMs: int64(result.ExecutionTimeSecs * 1000),
	}); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	return w.enforceRetention(projectDir)
}

// projectDirName sanitizes a project label into a single path component, so
// a Project value containing "/" or ".." can't write outside Directory.
// Empty becomes "default": spec §6.4's retention is "per project" but a
// caller may leave QueryContext.Project unset.
func projectDirName(project string) string {
	project = strings.TrimSpace(project)
	if project == "" {
		return "default"
	}
	project = filepath.Base(filepath.Clean(project))
	if project == "" || project == "." || project == ".." || project == string(filepath.Separator) {
		return "default"
	}
	return project
}

// Filename renders the spec §6.4 filename: ISO timestamp (':' replaced by
// '-') followed by the first 8 hex chars of the trace UUID.
func Filename(traceID string, at time.Time) string {
	ts := strings.ReplaceAll(at.UTC().Format(time.RFC3339), ":", "-")
	shortID := traceID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	return fmt.Sprintf("%s_%s.jsonl", ts, shortID)
}

// enforceRetention deletes the oldest trace files in dir (by filename sort
// order, which is chronological given the timestamp prefix) until at most
// MaxTracesPerProj remain. dir is always one project's subdirectory, so
// this never counts or evicts another project's traces.
func (w *Writer) enforceRetention(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading trace directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	excess := len(names) - w.MaxTracesPerProj
	for i := 0; i < excess; i++ {
		if err := os.Remove(filepath.Join(dir, names[i])); err != nil {
			return fmt.Errorf("pruning trace %s: %w", names[i], err)
		}
	}
	return nil
}
