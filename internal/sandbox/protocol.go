// Package sandbox defines the line-framed JSON wire protocol spoken
// between the Engine (host side, see internal/adapter) and a shesha-runner
// child process (see internal/sandbox/runner).
package sandbox

import (
	"encoding/json"
	"fmt"

	"github.com/sheshahq/shesha/pkg/models"
)

// FrameType discriminates the wire frames exchanged over the protocol.
type FrameType string

const (
	// Host -> runner. Wire-encoded with an "action" discriminator (spec
	// §6.1).
	FrameInit        FrameType = "init"
	FrameExecute     FrameType = "execute"
	FrameLLMResponse FrameType = "llm_response"
	FrameShutdown    FrameType = "shutdown"

	// Runner -> host. Wire-encoded with a "type" discriminator.
	FrameResult   FrameType = "result"
	FrameLLMQuery FrameType = "llm_query"
)

// Frame is the in-memory structure for every message exchanged on the
// protocol; unused fields are zero per frame Type. Its wire representation
// is asymmetric by direction (spec §6.1): host->runner frames serialize
// under an "action" key, runner->host frames under a "type" key. Content is
// shared by FrameLLMQuery (the instruction's subject text) and
// FrameLLMResponse (the sub-call's reply text) since a Frame is never both
// at once.
type Frame struct {
	Type FrameType

	// init (host -> runner)
	Documents []models.Document

	// execute (host -> runner)
	Code string

	// llm_query (runner -> host)
	Instruction string
	Content     string

	// llm_response (host -> runner): Content carries the reply text,
	// TokensUsed the sub-call's total token count (nil if unknown).
	TokensUsed *int

	// result (runner -> host)
	Stdout      string
	Stderr      string
	ReturnValue json.RawMessage
	FinalAnswer *string
	Error       string
}

// MarshalJSON renders f per spec §6.1's direction-asymmetric wire format.
func (f Frame) MarshalJSON() ([]byte, error) {
	switch f.Type {
	case FrameInit:
		return json.Marshal(struct {
			Action    FrameType          `json:"action"`
			Documents []models.Document `json:"documents,omitempty"`
		}{f.Type, f.Documents})

	case FrameExecute:
		return json.Marshal(struct {
			Action FrameType `json:"action"`
			Code   string    `json:"code"`
		}{f.Type, f.Code})

	case FrameLLMResponse:
		return json.Marshal(struct {
			Action     FrameType `json:"action"`
			Content    string    `json:"content"`
			TokensUsed *int      `json:"tokens_used"`
		}{f.Type, f.Content, f.TokensUsed})

	case FrameShutdown:
		return json.Marshal(struct {
			Action FrameType `json:"action"`
		}{f.Type})

	case FrameResult:
		return json.Marshal(struct {
			Type        FrameType       `json:"type"`
			Stdout      string          `json:"stdout,omitempty"`
			Stderr      string          `json:"stderr,omitempty"`
			ReturnValue json.RawMessage `json:"return_value,omitempty"`
			FinalAnswer *string         `json:"final_answer,omitempty"`
			Error       string          `json:"error,omitempty"`
		}{f.Type, f.Stdout, f.Stderr, f.ReturnValue, f.FinalAnswer, f.Error})

	case FrameLLMQuery:
		return json.Marshal(struct {
			Type        FrameType `json:"type"`
			Instruction string    `json:"instruction"`
			Content     string    `json:"content"`
		}{f.Type, f.Instruction, f.Content})

	default:
		return nil, fmt.Errorf("sandbox: encoding unknown frame type %q", f.Type)
	}
}

// UnmarshalJSON parses a wire frame by sniffing whether "action" or "type"
// is present, per spec §6.1's per-direction discriminator, then decodes the
// matching field set.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var probe struct {
		Action FrameType `json:"action"`
		Type   FrameType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	if probe.Action != "" {
		var hf struct {
			Action     FrameType          `json:"action"`
			Documents  []models.Document `json:"documents,omitempty"`
			Code       string             `json:"code,omitempty"`
			Content    string             `json:"content,omitempty"`
			TokensUsed *int               `json:"tokens_used,omitempty"`
		}
		if err := json.Unmarshal(data, &hf); err != nil {
			return err
		}
		*f = Frame{
			Type:       hf.Action,
			Documents:  hf.Documents,
			Code:       hf.Code,
			Content:    hf.Content,
			TokensUsed: hf.TokensUsed,
		}
		return nil
	}

	var rf struct {
		Type        FrameType       `json:"type"`
		Instruction string          `json:"instruction,omitempty"`
		Content     string          `json:"content,omitempty"`
		Stdout      string          `json:"stdout,omitempty"`
		Stderr      string          `json:"stderr,omitempty"`
		ReturnValue json.RawMessage `json:"return_value,omitempty"`
		FinalAnswer *string         `json:"final_answer,omitempty"`
		Error       string          `json:"error,omitempty"`
	}
	if err := json.Unmarshal(data, &rf); err != nil {
		return err
	}
	*f = Frame{
		Type:        rf.Type,
		Instruction: rf.Instruction,
		Content:     rf.Content,
		Stdout:      rf.Stdout,
		Stderr:      rf.Stderr,
		ReturnValue: rf.ReturnValue,
		FinalAnswer: rf.FinalAnswer,
		Error:       rf.Error,
	}
	return nil
}
