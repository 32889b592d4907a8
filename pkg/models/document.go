// Package models holds the data types shared across the Shesha runtime:
// documents bound into a query's context, trace records, token usage, and
// the results of a query or a single code execution.
package models

// Document is a single piece of context content bound into a query. The
// runner exposes all bound documents to the REPL as a read-only map keyed
// by Name.
type Document struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Size returns the document's content length in bytes, used when building
// the context inventory shown to the model (name, size pairs) without
// inlining every document's full content into the system prompt.
func (d Document) Size() int {
	return len(d.Content)
}

// Message is one turn of the conversation the Engine drives with the LLM:
// either the assistant's prior response or an observation fed back after
// executing code.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
