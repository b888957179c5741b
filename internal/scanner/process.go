package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ProcessSpec describes one subprocess invocation.
type ProcessSpec struct {
	Name string
	Args []string
	Dir  string
	Env  []string
	// KillGrace is how long a process may run after SIGTERM before SIGKILL.
	KillGrace time.Duration
}

// ProcessResult captures what a finished subprocess left behind.
type ProcessResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Process starts a subprocess and waits for it. Cancelling ctx terminates it.
type Process interface {
	Run(ctx context.Context, spec ProcessSpec) (ProcessResult, error)
}

// ExecProcess runs subprocesses with os/exec.
type ExecProcess struct {
	// TailBytes bounds how much stdout/stderr is kept per stream.
	TailBytes int
}

const (
	defaultTailBytes = 16 << 10
	defaultKillGrace = 10 * time.Second
)

// Run starts the process and waits for it to exit. When ctx is done the
// process receives SIGTERM and, after KillGrace, SIGKILL. A non-zero exit is
// reported through ProcessResult.ExitCode with a nil error; the error is
// reserved for start failures and context termination.
func (p ExecProcess) Run(ctx context.Context, spec ProcessSpec) (ProcessResult, error) {
	limit := p.TailBytes
	if limit <= 0 {
		limit = defaultTailBytes
	}
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...) //nolint:gosec // command comes from config
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = spec.KillGrace
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = defaultKillGrace
	}
	stdout := &tailBuffer{limit: limit}
	stderr := &tailBuffer{limit: limit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	res := ProcessResult{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("process terminated: %w", ctxErr)
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return res, fmt.Errorf("run %s: %w", spec.Name, err)
	}
	return res, nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(p)
	if len(p) >= t.limit {
		t.buf.Reset()
		t.buf.Write(p[len(p)-t.limit:])
		return n, nil
	}
	if over := t.buf.Len() + len(p) - t.limit; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
