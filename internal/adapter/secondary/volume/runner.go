package volume

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"micguard/internal/domain"
)

const waitDelay = 500 * time.Millisecond

// helperCall is one invocation of an external tool.
type helperCall struct {
	name    string
	args    []string
	timeout time.Duration
}

// leftover is a helper the runner killed whose tree may not be gone yet. It
// only ever signals processes it can prove belong to that helper, never a
// bare pid that the system may have handed out again.
type leftover interface {
	// terminate kills what remains and reports whether anything may still be alive.
	terminate() bool
	release()
}

// runner executes helper processes one at a time. A helper that had to be
// killed is terminated at once; if part of it survives, it is swept again
// (followed by a settle delay) before the next one starts, so a stuck
// process never overlaps a fresh one.
type runner struct {
	mu       sync.Mutex
	settle   time.Duration
	env      []string
	leftover leftover
	lookPath func(string) (string, error)
	sleep    func(time.Duration)
}

func newRunner(settle time.Duration, env ...string) *runner {
	return &runner{
		settle:   settle,
		env:      env,
		lookPath: exec.LookPath,
		sleep:    time.Sleep,
	}
}

// run executes call and returns its stdout. Errors wrap domain.ErrBackendUnavailable
// when the tool is missing and domain.ErrHelperTimeout when it had to be killed.
func (r *runner) run(ctx context.Context, call helperCall) ([]byte, error) {
	path, err := r.lookPath(call.name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrBackendUnavailable, call.name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.leftover != nil {
		r.leftover.terminate()
		r.leftover.release()
		r.leftover = nil
		r.sleep(r.settle)
	}

	ctx, cancel := context.WithTimeout(ctx, call.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, call.args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}
	prepareCommand(cmd)
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", call.name, err)
	}
	proc := track(cmd)
	err = cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		r.sweep(proc)
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w after %s", call.name, domain.ErrHelperTimeout, call.timeout)
		}
		return nil, ctxErr
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		r.sweep(proc)
		return stdout.Bytes(), nil
	}
	proc.release()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return nil, fmt.Errorf("%s failed: %w (%s)", call.name, err, msg)
	}
	return stdout.Bytes(), nil
}

// sweep kills what is left of proc right away and keeps it only while
// something may survive.
func (r *runner) sweep(proc leftover) {
	if proc.terminate() {
		r.leftover = proc
		return
	}
	proc.release()
}
