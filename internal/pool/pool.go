// Package pool maintains a warm set of shesha-runner child processes, each
// speaking the line-framed protocol defined in internal/sandbox (spec
// §4.4). A Runner is exclusively owned by one query for its lifetime and is
// never reused across queries: its REPL state would otherwise leak prior
// documents to an unrelated query.
package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/sheshahq/shesha/internal/sandbox"
)

// Runner is one spawned shesha-runner process and its protocol streams.
type Runner struct {
	ID  string
	cmd *exec.Cmd

	stdin  io.WriteCloser
	stdout io.ReadCloser

	Enc *sandbox.Encoder
	Dec *sandbox.Decoder
}

// Kill force-terminates the runner process immediately.
func (r *Runner) Kill() error {
	if r.cmd.Process == nil {
		return nil
	}
	return r.cmd.Process.Kill()
}

// Shutdown sends a shutdown frame and waits up to grace for the process to
// exit cleanly, force-killing it if the grace period elapses.
func (r *Runner) Shutdown(grace time.Duration) error {
	_ = r.Enc.Encode(sandbox.Frame{Type: sandbox.FrameShutdown})
	if r.stdin != nil {
		_ = r.stdin.Close()
	}

	done := make(chan error, 1)
	go func() { done <- r.cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(grace):
		return r.Kill()
	}
}

// Outcome describes how a query disposed of a Runner, which determines
// whether Release terminates it gracefully or force-kills it (spec §4.4).
type Outcome int

const (
	// OutcomeClean means the query finished (successfully or not) without
	// any protocol violation; the runner is terminated gracefully.
	OutcomeClean Outcome = iota
	// OutcomeViolation means the runner violated the wire protocol or
	// timed out; it is force-killed.
	OutcomeViolation
)

// Spawner constructs a new Runner process. Production code uses
// ProcessSpawner; tests substitute an in-memory spawner.
type Spawner interface {
	Spawn(ctx context.Context) (*Runner, error)
}

// ProcessSpawner launches the shesha-runner binary at Path as a child
// process, wiring its stdin/stdout to the protocol codec with Limits.
type ProcessSpawner struct {
	Path   string
	Limits sandbox.Limits

	// SpawnTimeout bounds how long starting one runner process (fork/exec
	// through cmd.Start returning) may take; it does not bound the
	// runner's subsequent lifetime, which stays tied to ctx. A hung
	// spawn (e.g. resource exhaustion forking the child) fails fast
	// instead of blocking Pool.Acquire indefinitely (spec §6.5's
	// spawn_timeout_seconds). Zero means no bound.
	SpawnTimeout time.Duration
}

// Spawn starts one shesha-runner child process.
func (s *ProcessSpawner) Spawn(ctx context.Context) (*Runner, error) {
	cmd := exec.CommandContext(ctx, s.Path)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("opening runner stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening runner stdout: %w", err)
	}

	started := make(chan error, 1)
	go func() { started <- cmd.Start() }()

	var timeout <-chan time.Time
	if s.SpawnTimeout > 0 {
		timer := time.NewTimer(s.SpawnTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-started:
		if err != nil {
			return nil, fmt.Errorf("starting runner process: %w", err)
		}
	case <-timeout:
		return nil, fmt.Errorf("starting runner process: exceeded spawn timeout of %s", s.SpawnTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("starting runner process: %w", ctx.Err())
	}

	return &Runner{
		ID:     fmt.Sprintf("runner-%d", cmd.Process.Pid),
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		Enc:    sandbox.NewEncoder(stdin),
		Dec:    sandbox.NewDecoder(stdout, s.Limits),
	}, nil
}

// Stats reports the current size of the warm set, how many runners are
// checked out, and the configured ceiling (spec §4.4, the "Pool
// statistics" supplemented feature).
type Stats struct {
	Available int
	Active    int
	MaxSize   int
}

// Pool manages a warm set of Runners up to MaxSize, growing on demand when
// the warm set is empty and shrinking back to the warm target after each
// release (spec §4.4).
type Pool struct {
	spawner Spawner
	size    int
	maxSize int

	mu        sync.Mutex
	available []*Runner
	active    int
	closed    bool
}

var ErrPoolClosed = errors.New("pool is closed")

// NewPool constructs a Pool and pre-warms `size` runners (best-effort: a
// spawn failure during warmup is dropped, since the pool can grow on
// demand via Acquire).
func NewPool(ctx context.Context, spawner Spawner, size, maxSize int) (*Pool, error) {
	if maxSize < size {
		maxSize = size
	}
	p := &Pool{spawner: spawner, size: size, maxSize: maxSize}

	for i := 0; i < size; i++ {
		r, err := spawner.Spawn(ctx)
		if err != nil {
			continue
		}
		p.available = append(p.available, r)
	}
	return p, nil
}

// Acquire returns an idle runner, spawning a new one if the warm set is
// empty and the pool has not reached maxSize, else blocking until ctx is
// done.
func (p *Pool) Acquire(ctx context.Context) (*Runner, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if n := len(p.available); n > 0 {
		r := p.available[n-1]
		p.available = p.available[:n-1]
		p.active++
		p.mu.Unlock()
		return r, nil
	}
	canGrow := p.active < p.maxSize
	if canGrow {
		p.active++
	}
	p.mu.Unlock()

	if canGrow {
		r, err := p.spawner.Spawn(ctx)
		if err != nil {
			p.mu.Lock()
			p.active--
			p.mu.Unlock()
			return nil, fmt.Errorf("spawning runner: %w", err)
		}
		return r, nil
	}

	// Pool is at capacity; wait for a release or cancellation.
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(25 * time.Millisecond):
			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				return nil, ErrPoolClosed
			}
			if n := len(p.available); n > 0 {
				r := p.available[n-1]
				p.available = p.available[:n-1]
				p.active++
				p.mu.Unlock()
				return r, nil
			}
			p.mu.Unlock()
		}
	}
}

// Release disposes of a checked-out Runner per outcome and, whatever the
// outcome, asynchronously spawns a replacement when the pool has fallen
// below its warm target.
// A Runner is never returned to the available set itself: REPL state must
// not cross queries (spec §4.4, §9).
func (p *Pool) Release(r *Runner, outcome Outcome) {
	if r == nil {
		return
	}

	if outcome == OutcomeViolation {
		_ = r.Kill()
	} else {
		_ = r.Shutdown(2 * time.Second)
	}

	p.mu.Lock()
	p.active--
	closed := p.closed
	belowTarget := len(p.available)+p.active < p.size
	p.mu.Unlock()

	if closed || !belowTarget {
		return
	}

	go func() {
		replacement, err := p.spawner.Spawn(context.Background())
		if err != nil {
			return
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			_ = replacement.Kill()
			return
		}
		p.available = append(p.available, replacement)
		p.mu.Unlock()
	}()
}

// Shutdown drains the warm set, shutting down every idle runner, and marks
// the pool closed so no further Acquire succeeds. It is idempotent.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.available
	p.available = nil
	p.mu.Unlock()

	for _, r := range idle {
		_ = r.Shutdown(2 * time.Second)
	}
}

// Stats reports the pool's current warm-set size, checked-out count, and
// configured ceiling.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Available: len(p.available), Active: p.active, MaxSize: p.maxSize}
}
