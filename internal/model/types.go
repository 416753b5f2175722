package model

import (
	"fmt"
	"strings"
	"time"
)

// SimulatorBackend selects how carlactl controls the CARLA simulator.
// The simulator is an external collaborator: carlactl only needs to know
// how to start it, stop it, and clean up stray instances between collector
// retries.
type SimulatorBackend string

const (
	// BackendProcess controls a locally installed simulator binary.
	// Cleanup is done by force-killing matching processes by name.
	BackendProcess SimulatorBackend = "process"

	// BackendDocker controls the simulator as a Docker container
	// (e.g., the carlasim/carla image). Cleanup stops the labeled
	// container in addition to the process-name sweep.
	BackendDocker SimulatorBackend = "docker"
)

// String returns the string representation of SimulatorBackend.
func (b SimulatorBackend) String() string {
	return string(b)
}

// IsValid checks whether the SimulatorBackend value is one of the
// predefined backends.
func (b SimulatorBackend) IsValid() bool {
	switch b {
	case BackendProcess, BackendDocker:
		return true
	default:
		return false
	}
}

// ParseSimulatorBackend converts a string to a SimulatorBackend.
// Returns an error if the string does not name a known backend.
func ParseSimulatorBackend(s string) (SimulatorBackend, error) {
	backend := SimulatorBackend(strings.ToLower(s))
	if !backend.IsValid() {
		return "", fmt.Errorf("invalid simulator backend: %q (valid: process, docker)", s)
	}
	return backend, nil
}

// SimulatorState describes what `carlactl sim status` found.
type SimulatorState string

const (
	// SimRunning indicates at least one simulator process (or the managed
	// container) is alive.
	SimRunning SimulatorState = "running"

	// SimStopped indicates no simulator process or managed container
	// was found.
	SimStopped SimulatorState = "stopped"
)

// String returns the string representation of SimulatorState.
func (s SimulatorState) String() string {
	return string(s)
}

// AttemptResult records the outcome of a single collector invocation
// inside the supervision loop.
type AttemptResult struct {
	// Attempt is the 1-based invocation number.
	Attempt int `json:"attempt"`

	// ExitCode is the collector's process exit code. Zero means the
	// collection run completed; any other value is treated as a crash
	// and triggers cleanup plus a retry.
	ExitCode int `json:"exitCode"`

	// Duration is how long the collector ran before exiting.
	Duration time.Duration `json:"duration"`

	// KilledSimulator reports whether the post-failure simulator sweep
	// was attempted for this invocation. Always false on success.
	KilledSimulator bool `json:"killedSimulator"`
}

// CollectReport summarizes a whole supervised collection run for the
// `collect` command's JSON/text output.
type CollectReport struct {
	// Attempts lists every collector invocation in order.
	Attempts []AttemptResult `json:"attempts"`

	// Succeeded is true when the final invocation exited zero.
	// False only when a bounded retry budget was exhausted or the run
	// was cancelled by the operator.
	Succeeded bool `json:"succeeded"`
}

// TotalAttempts returns the number of collector invocations issued.
func (r *CollectReport) TotalAttempts() int {
	return len(r.Attempts)
}

// LaunchReport summarizes a single GUI launch for the `gui` command.
type LaunchReport struct {
	// ArtifactPaths is the immutable list of versioned CARLA Python
	// artifacts discovered during bootstrap, in the order they were
	// appended to PYTHONPATH. Empty when none were found (non-fatal).
	ArtifactPaths []string `json:"artifactPaths,omitempty"`

	// CondaEnv is the name of the runtime environment that was activated.
	CondaEnv string `json:"condaEnv"`

	// ExitCode is the GUI process exit code.
	ExitCode int `json:"exitCode"`

	// LogPath is the append-only log file that captured the run.
	LogPath string `json:"logPath"`
}

// ExitCode defines the carlactl process exit codes. These allow shell
// scripts and CI wrappers to distinguish failure classes programmatically.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigError indicates carlactl.yaml or a launch profile is
	// missing or invalid.
	ExitConfigError ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible
	// while the docker simulator backend is selected.
	ExitDockerNotRunning ExitCode = 3

	// ExitCollectorFailed indicates the collector did not reach a clean
	// exit within a bounded retry budget.
	ExitCollectorFailed ExitCode = 4

	// ExitSimulatorError indicates a simulator start/stop/status
	// operation failed.
	ExitSimulatorError ExitCode = 5

	// ExitCondaEnvNotFound indicates the configured conda environment
	// could not be located.
	ExitCondaEnvNotFound ExitCode = 6

	// ExitCancelled indicates the operator interrupted the run.
	ExitCancelled ExitCode = 7
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
