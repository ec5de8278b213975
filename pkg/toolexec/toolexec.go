// Package toolexec abstracts invocation of external helper tools behind a
// small runner capability: argv in, exit code and captured stderr out. This
// keeps the strategy code that reacts to tool failures testable without
// spawning real processes.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

// Result holds the outcome of a completed command execution.
type Result struct {
	ExitCode int
	Stderr   string
}

// Success reports whether the command exited cleanly.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Runner defines the interface for resolving and executing external commands.
type Runner interface {
	// LookPath resolves an executable in the host's search path.
	LookPath(file string) (string, error)

	// Run executes the command and waits for it to finish. A non-zero exit
	// code is reported through the Result, not the error; the error is
	// reserved for invocation failures (executable missing, context
	// canceled before completion, etc.).
	Run(ctx context.Context, name string, args ...string) (*Result, error)
}

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct{}

// NewExecRunner creates a Runner that executes real processes.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// LookPath resolves the executable via the system search path.
func (r *ExecRunner) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// Run executes the command, discarding stdout and capturing stderr for error
// reporting.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{Stderr: strings.TrimSpace(stderr.String())}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	// The command never ran (not found, permission denied, canceled context).
	return nil, err
}

// Statically assert that ExecRunner implements the interface.
var _ Runner = (*ExecRunner)(nil)
