package prompt

import (
	"fmt"
	"strings"

	"github.com/sheshahq/shesha/pkg/models"
)

// TruncationMarker is appended when a wrapped observation exceeds its cap.
const TruncationMarker = "\n...[truncated]"

// WrapObservation builds the user-turn text fed back to the model after one
// execute() call: stdout, stderr, return_value, and error, each under a
// short heading, in that order, omitting empty sections (spec §6.2). REPL
// code can `print(context[doc])` or return document-derived text, so every
// section carries document-derived bytes and is wrapped under the same
// untrusted banner the sub-call path applies (spec §6.3, §1) before being
// joined. The result is truncated to maxChars with TruncationMarker
// appended on overflow; maxChars <= 0 means no cap.
func WrapObservation(result models.ExecutionResult, maxChars int) string {
	var sections []string
	if result.Stdout != "" {
		sections = append(sections, "STDOUT:\n"+WrapUntrusted(result.Stdout))
	}
	if result.Stderr != "" {
		sections = append(sections, "STDERR:\n"+WrapUntrusted(result.Stderr))
	}
	if len(result.ReturnVal) > 0 {
		sections = append(sections, "RETURN:\n"+WrapUntrusted(string(result.ReturnVal)))
	}
	if result.Error != "" {
		sections = append(sections, "ERROR:\n"+WrapUntrusted(result.Error))
	}
	if len(sections) == 0 {
		sections = append(sections, "(no output)")
	}

	wrapped := strings.Join(sections, "\n\n")
	if maxChars > 0 && len(wrapped) > maxChars {
		cut := maxChars - len(TruncationMarker)
		if cut < 0 {
			cut = 0
		}
		wrapped = wrapped[:cut] + TruncationMarker
	}
	return wrapped
}

// WrapFinalAnswer renders a terminal FINAL(value) for display purposes
// (trace content, logs); the Engine does not feed this back as an
// observation since a final answer ends the query.
func WrapFinalAnswer(value string) string {
	return fmt.Sprintf("FINAL: %s", value)
}
