package pool

import (
	"os/exec"

	"github.com/sheshahq/shesha/internal/sandbox"
)

// fakeCmd returns an unstarted *exec.Cmd so a fake Runner's Kill/Shutdown
// paths (which only touch cmd.Process and cmd.Wait) behave harmlessly.
func fakeCmd() *exec.Cmd {
	return exec.Command("true")
}

// NewFakeRunnerForTest builds a Runner wired to a pre-built encoder/decoder
// pair, for use by other packages' tests (e.g. internal/adapter) that need
// to exercise the protocol without spawning a real shesha-runner process.
func NewFakeRunnerForTest(enc *sandbox.Encoder, dec *sandbox.Decoder) *Runner {
	return &Runner{ID: "fake", Enc: enc, Dec: dec, cmd: fakeCmd()}
}
