package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/roach88/swiftdriver/internal/job"
)

// Result is the outcome of one launched job.
type Result struct {
	ExitCode int
	Signal   int
	Output   []byte
	Duration time.Duration

	// Err is set when the job could not be started at all.
	Err error
}

// Succeeded reports a zero exit without a signal or launch error.
func (r Result) Succeeded() bool {
	return r.Err == nil && r.ExitCode == 0 && r.Signal == 0
}

// Launcher starts job processes.
type Launcher interface {
	// Launch runs inv to completion. A non-nil error means the process
	// could not be started; a non-zero exit is reported in the Result.
	Launch(ctx context.Context, j *job.Job, inv *job.Invocation) (Result, error)

	// Exec replaces the current process with inv. It returns only on
	// failure.
	Exec(inv *job.Invocation) error
}

// ProcessLauncher launches jobs as child processes.
type ProcessLauncher struct {
	// Dir is the working directory of launched processes. Empty means the
	// current directory.
	Dir string
}

// Launch implements Launcher.
func (l ProcessLauncher) Launch(ctx context.Context, j *job.Job, inv *job.Invocation) (Result, error) {
	cmd := exec.CommandContext(ctx, inv.Executable, inv.Args...)
	cmd.Dir = l.Dir
	cmd.Env = append(os.Environ(), inv.Env...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	res := Result{Output: out.Bytes(), Duration: time.Since(start)}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			res.Signal = int(status.Signal())
		}
		return res, nil
	}
	return res, fmt.Errorf("launch %s: %w", j.Description(), err)
}
