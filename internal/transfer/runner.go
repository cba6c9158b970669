package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Result holds the output and exit status of one external invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes an external program. The engine and the remote shell both
// run through it so tests can substitute a scripted implementation.
type Runner interface {
	// Run executes program with args, honoring ctx for cancellation. A
	// non-zero exit is reported through Result.ExitCode, not the error;
	// the error covers failures to launch or a killed process.
	Run(ctx context.Context, program string, args ...string) (*Result, error)
}

// ExecRunner runs programs through os/exec with a per-invocation timeout.
type ExecRunner struct {
	// Timeout bounds each invocation. Zero means no bound beyond ctx.
	Timeout time.Duration
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, program string, args ...string) (*Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, program, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("%s: %w", program, ctxErr)
		}
		return res, fmt.Errorf("run %s: %w", program, err)
	}

	return res, nil
}
