// Package runner implements the in-sandbox side of the protocol: a
// goja-embedded REPL that evaluates code against a persistent namespace,
// exposes context/llm_query/FINAL/FINAL_VAR bindings, and speaks the
// line-framed JSON protocol (see internal/sandbox) with the host process.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"

	"github.com/sheshahq/shesha/internal/sandbox"
	"github.com/sheshahq/shesha/pkg/models"
)

// SubCaller performs the blocking round trip for an llm_query call: it
// sends an llm_query frame upstream and waits for the matching
// llm_response. The runner never has more than one outstanding sub-call.
type SubCaller interface {
	SubCall(ctx context.Context, instruction, content string) (string, error)
}

// finalSignal is panicked from the FINAL/FINAL_VAR host bindings to unwind
// the running script without requiring goja to support early return from
// top-level statements.
type finalSignal struct {
	value string
}

// Host is one runner's persistent REPL. It survives across multiple
// execute() calls within a single runner lifetime, per the no-reuse-across-
// queries rule enforced by the pool, not by Host itself.
type Host struct {
	vm        *goja.Runtime
	documents map[string]models.Document
	subCaller SubCaller
	stdout    bytes.Buffer
	stderr    bytes.Buffer
}

// NewHost builds a Host over the given documents, registering the context
// map and the llm_query/FINAL/FINAL_VAR/print bindings. subCaller performs
// the actual upstream round trip for llm_query.
func NewHost(documents []models.Document, subCaller SubCaller) (*Host, error) {
	vm := goja.New()
	h := &Host{
		vm:        vm,
		documents: make(map[string]models.Document, len(documents)),
		subCaller: subCaller,
	}

	docMap := make(map[string]string, len(documents))
	for _, d := range documents {
		h.documents[d.Name] = d
		docMap[d.Name] = d.Content
	}

	if err := vm.Set("context", docMap); err != nil {
		return nil, fmt.Errorf("binding context: %w", err)
	}
	if err := vm.Set("llm_query", h.llmQuery); err != nil {
		return nil, fmt.Errorf("binding llm_query: %w", err)
	}
	if err := vm.Set("FINAL", h.final); err != nil {
		return nil, fmt.Errorf("binding FINAL: %w", err)
	}
	if err := vm.Set("FINAL_VAR", h.finalVar); err != nil {
		return nil, fmt.Errorf("binding FINAL_VAR: %w", err)
	}
	if err := vm.Set("print", h.print); err != nil {
		return nil, fmt.Errorf("binding print: %w", err)
	}

	return h, nil
}

// print appends its arguments, space-separated, followed by a newline, to
// the REPL's captured stdout — the runner's stand-in for a console.
func (h *Host) print(args ...interface{}) {
	for i, a := range args {
		if i > 0 {
			h.stdout.WriteByte(' ')
		}
		fmt.Fprint(&h.stdout, a)
	}
	h.stdout.WriteByte('\n')
}

// final implements FINAL(value): it halts the running script by panicking
// with a finalSignal, recovered by Execute.
func (h *Host) final(value goja.Value) {
	panic(finalSignal{value: value.String()})
}

// finalVar implements FINAL_VAR(name): it resolves name in the current
// namespace and halts with that value, exactly as FINAL would.
func (h *Host) finalVar(name string) {
	v := h.vm.Get(name)
	if v == nil || goja.IsUndefined(v) {
		panic(finalSignal{value: ""})
	}
	panic(finalSignal{value: v.String()})
}

// llmQuery implements llm_query(instruction, content): synchronous from
// the script's perspective, backed by a blocking round trip over the
// protocol stream (spec §4.2/§9 coroutine control-flow note — this runner
// uses the preemptive model: a blocking call on the current goroutine).
func (h *Host) llmQuery(instruction, content string) (string, error) {
	if h.subCaller == nil {
		return "", fmt.Errorf("llm_query unavailable: no sub-caller configured")
	}
	return h.subCaller.SubCall(context.Background(), instruction, content)
}

// ExecResult is the outcome of running one code string against the Host's
// persistent namespace.
type ExecResult struct {
	Stdout      string
	Stderr      string
	ReturnValue json.RawMessage
	FinalAnswer *string
	Err         error
}

// Execute evaluates code in the persistent namespace, capturing stdout via
// the print binding and translating a FINAL/FINAL_VAR panic or a runtime
// error into an ExecResult. Variables set by code remain visible to the
// next Execute call on this Host.
func (h *Host) Execute(code string) (result ExecResult) {
	h.stdout.Reset()
	h.stderr.Reset()

	defer func() {
		result.Stdout = h.stdout.String()
		result.Stderr = h.stderr.String()

		if r := recover(); r != nil {
			if fs, ok := r.(finalSignal); ok {
				v := fs.value
				result.FinalAnswer = &v
				return
			}
			result.Err = fmt.Errorf("panic during execution: %v", r)
		}
	}()

	v, err := h.vm.RunString(code)
	if err != nil {
		result.Err = err
		return
	}
	if v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		raw, err := json.Marshal(v.Export())
		if err != nil {
			result.Err = fmt.Errorf("marshaling return value: %w", err)
			return
		}
		result.ReturnValue = raw
	}
	return
}

// ToFrame converts an ExecResult into the wire-level result Frame. Errors
// are stringified; return_value is the REPL expression result exported
// through goja's Go-value conversion and re-encoded as JSON (spec §3, §6.1),
// preserving lists/objects instead of coercing them to a display string.
func (r ExecResult) ToFrame() sandbox.Frame {
	f := sandbox.Frame{
		Type:        sandbox.FrameResult,
		Stdout:      r.Stdout,
		Stderr:      r.Stderr,
		ReturnValue: r.ReturnValue,
		FinalAnswer: r.FinalAnswer,
	}
	if r.Err != nil {
		f.Error = r.Err.Error()
	}
	return f
}

// MarshalDocumentInventory renders the documents' {name,size} pairs as a
// JSON array, in the documents' insertion order.
func MarshalDocumentInventory(documents []models.Document) ([]byte, error) {
	type entry struct {
		Name string `json:"name"`
		Size int    `json:"size"`
	}
	entries := make([]entry, len(documents))
	for i, d := range documents {
		entries[i] = entry{Name: d.Name, Size: d.Size()}
	}
	return json.Marshal(entries)
}
