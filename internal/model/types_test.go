package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseSimulatorBackend verifies backend string parsing, including
// case normalization and rejection of unknown values.
func TestParseSimulatorBackend(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    SimulatorBackend
		wantErr bool
	}{
		{name: "process", input: "process", want: BackendProcess},
		{name: "docker", input: "docker", want: BackendDocker},
		{name: "uppercase is normalized", input: "Docker", want: BackendDocker},
		{name: "unknown backend", input: "vm", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSimulatorBackend(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.IsValid())
		})
	}
}

// TestCollectReport_TotalAttempts verifies attempt counting on the
// aggregate report.
func TestCollectReport_TotalAttempts(t *testing.T) {
	report := &CollectReport{}
	assert.Equal(t, 0, report.TotalAttempts())

	report.Attempts = append(report.Attempts,
		AttemptResult{Attempt: 1, ExitCode: 137, KilledSimulator: true},
		AttemptResult{Attempt: 2, ExitCode: 0},
	)
	assert.Equal(t, 2, report.TotalAttempts())
}

// TestCLIError_ErrorAndUnwrap verifies the error message format and that
// Unwrap exposes the wrapped error to errors.Is.
func TestCLIError_ErrorAndUnwrap(t *testing.T) {
	underlying := errors.New("connection refused")

	wrapped := WrapCLIError(ExitDockerNotRunning, "Docker daemon unreachable", underlying)
	assert.Equal(t, "Docker daemon unreachable: connection refused", wrapped.Error())
	assert.True(t, errors.Is(wrapped, underlying),
		"Unwrap should expose the underlying error")
	assert.Equal(t, ExitDockerNotRunning, wrapped.Code)

	plain := NewCLIError(ExitConfigError, "missing carlactl.yaml")
	assert.Equal(t, "missing carlactl.yaml", plain.Error())
	assert.Nil(t, plain.Unwrap())
}
