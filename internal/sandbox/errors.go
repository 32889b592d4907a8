package sandbox

import "fmt"

// ProtocolErrorKind classifies a wire-protocol violation.
type ProtocolErrorKind string

const (
	KindLineTooLong    ProtocolErrorKind = "line-too-long"
	KindBufferTooLarge ProtocolErrorKind = "buffer-too-large"
	KindReadTimeout    ProtocolErrorKind = "read-timeout"
	KindMalformedFrame ProtocolErrorKind = "malformed-frame"
)

// ProtocolError reports a violation of the framing contract (spec §4.2/§6):
// a line exceeding MaxLineLength, cumulative reads exceeding MaxBufferSize,
// a read exceeding MaxReadTimeout, or a line that fails to decode as a Frame.
type ProtocolError struct {
	Kind ProtocolErrorKind
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("protocol error (%s)", e.Kind)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
