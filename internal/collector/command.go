// Package collector builds and runs the external data-collection program.
//
// The collector is an opaque Python program: carlactl assembles its
// command line from carlactl.yaml plus an optional launch profile, runs
// it to completion, and reports the exit code. Checkpointing and resume
// live entirely inside the collector — re-invoking it after a crash is
// safe and makes forward progress, which is what the supervision loop
// in internal/supervise relies on.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/openlane-studio/carlactl/internal/config"
	"github.com/openlane-studio/carlactl/internal/profile"
)

// Command knows how to invoke the collector program. It is built once per
// `collect` run and re-executed unchanged on every supervision attempt.
type Command struct {
	// python is the interpreter binary.
	python string

	// args is the full argument list after the interpreter, frozen at
	// construction so every retry runs the identical command line.
	args []string

	// workDir is the collector's working directory ("" inherits ours).
	workDir string

	// stdout and stderr receive the collector's output. The collector
	// prints its own episode/frame progress, so we pass the streams
	// through rather than capturing them.
	stdout io.Writer
	stderr io.Writer
}

// New assembles the collector command from config and an optional profile.
// A nil profile runs the collector with only the connection arguments,
// leaving every task parameter at the collector's own default.
func New(cfg *config.CollectorConfig, p *profile.Profile, stdout, stderr io.Writer) *Command {
	args := []string{cfg.Script}

	// Connection arguments come from config and are always present.
	if cfg.Host != "" {
		args = append(args, "--host", cfg.Host)
	}
	if cfg.Port > 0 {
		args = append(args, "--port", strconv.Itoa(cfg.Port))
	}
	if cfg.TrafficManagerPort > 0 {
		args = append(args, "--tm_port", strconv.Itoa(cfg.TrafficManagerPort))
	}

	// Task arguments come from the profile.
	if p != nil {
		args = append(args, p.Args()...)
	}

	// Escape hatch for collector flags carlactl does not model.
	args = append(args, cfg.ExtraArgs...)

	return &Command{
		python:  cfg.Python,
		args:    args,
		workDir: cfg.WorkDir,
		stdout:  stdout,
		stderr:  stderr,
	}
}

// String renders the command line for logging and --dry-run output.
func (c *Command) String() string {
	line := c.python
	for _, arg := range c.args {
		line += " " + arg
	}
	return line
}

// Run executes the collector to completion and returns its exit code.
//
// A non-zero exit code is NOT an error: the supervisor treats every
// non-zero code identically (transient, retryable), so the code is data,
// not a failure of Run itself. An error is returned only when the process
// could not be started or was torn down by context cancellation.
func (c *Command) Run(ctx context.Context) (int, error) {
	// exec.CommandContext kills the collector if the operator interrupts
	// the supervision loop (Ctrl-C cancels the root context).
	// #nosec G204 — the command line is assembled from config, not user input
	cmd := exec.CommandContext(ctx, c.python, c.args...)
	cmd.Dir = c.workDir
	cmd.Stdout = c.stdout
	cmd.Stderr = c.stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	// Cancellation wins over exit-code interpretation: a process killed
	// by our own context cancel must not look like a collector crash.
	if ctx.Err() != nil {
		return 0, fmt.Errorf("collector interrupted: %w", ctx.Err())
	}

	// ExitError means the process ran and exited non-zero — that is a
	// normal supervised outcome, reported via the code.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}

	// Anything else (binary not found, permission denied) is a real
	// error the supervisor should not retry blindly.
	return 0, fmt.Errorf("failed to run collector: %w", err)
}
