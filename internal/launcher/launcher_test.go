package launcher

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlane-studio/carlactl/internal/conda"
	"github.com/openlane-studio/carlactl/internal/config"
)

// newTestLauncher builds a Launcher with a fake conda resolver and a fake
// GUI that exits with the given code. It returns the launcher and the
// buffer standing in for the terminal.
func newTestLauncher(t *testing.T, cfg *config.Config, guiExit int) (*Launcher, *bytes.Buffer) {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	terminal := &bytes.Buffer{}

	l := New(cfg, log)
	l.stdout = terminal
	l.stdin = strings.NewReader("")
	l.sleep = func(time.Duration) {}
	l.resolveEnv = func(context.Context, string, string) (*conda.Activation, error) {
		return &conda.Activation{Name: cfg.Conda.Env, Prefix: "/envs/" + cfg.Conda.Env}, nil
	}
	l.runGUI = func(_ context.Context, _ []string, output io.Writer) (int, error) {
		io.WriteString(output, "gui output\n")
		return guiExit, nil
	}
	return l, terminal
}

// testConfig returns defaults adjusted to point into a temp directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Dist.Dir = filepath.Join(dir, "dist")
	cfg.GUI.LogPath = filepath.Join(dir, "logs", "launcher.log")
	return cfg
}

// TestRun_Success verifies the happy path: log written, no prompt, nil error.
func TestRun_Success(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Dist.Dir, 0o755))
	egg := filepath.Join(cfg.Dist.Dir, "carla-0.9.15-py3.7.egg")
	require.NoError(t, os.WriteFile(egg, nil, 0o644))

	l, terminal := newTestLauncher(t, cfg, 0)

	report, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.ExitCode)
	assert.Equal(t, []string{egg}, report.ArtifactPaths)

	out := terminal.String()
	assert.Contains(t, out, "gui output")
	assert.Contains(t, out, "GUI exited normally")
	assert.NotContains(t, out, "Press Enter", "no acknowledgment prompt on success")

	logged, readErr := os.ReadFile(cfg.GUI.LogPath)
	require.NoError(t, readErr)
	assert.Contains(t, string(logged), "gui output", "GUI output must reach the log file")
}

// TestRun_LogAppends verifies the launch log accumulates across runs
// instead of being truncated.
func TestRun_LogAppends(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.GUI.LogPath), 0o755))
	require.NoError(t, os.WriteFile(cfg.GUI.LogPath, []byte("previous launch record\n"), 0o644))

	l, _ := newTestLauncher(t, cfg, 0)
	_, err := l.Run(context.Background())
	require.NoError(t, err)

	logged, readErr := os.ReadFile(cfg.GUI.LogPath)
	require.NoError(t, readErr)
	assert.Contains(t, string(logged), "previous launch record",
		"earlier log content must survive a new launch")
	assert.Contains(t, string(logged), "gui output")
}

// TestRun_LogCapturesDiagnostics verifies the launcher's own structured
// log lines reach the launch log, not just the terminal — the log is the
// only persistent record of the run.
func TestRun_LogCapturesDiagnostics(t *testing.T) {
	cfg := testConfig(t)

	l, _ := newTestLauncher(t, cfg, 0)

	_, err := l.Run(context.Background())
	require.NoError(t, err)

	logged, readErr := os.ReadFile(cfg.GUI.LogPath)
	require.NoError(t, readErr)
	assert.Contains(t, string(logged), "conda environment resolved",
		"logrus output must be teed into the launch log")
}

// TestRun_LogRedirectionIsScoped verifies the logger's output is restored
// after the pipeline, so later log lines do not write to a closed file.
func TestRun_LogRedirectionIsScoped(t *testing.T) {
	cfg := testConfig(t)

	l, _ := newTestLauncher(t, cfg, 0)
	prevOut := l.log.Out

	_, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, prevOut, l.log.Out)
}

// TestRun_NoArtifacts verifies zero artifact matches produce a warning
// but the launch still happens.
func TestRun_NoArtifacts(t *testing.T) {
	cfg := testConfig(t) // dist dir never created

	l, terminal := newTestLauncher(t, cfg, 0)

	report, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.ArtifactPaths)
	assert.Contains(t, terminal.String(), "warning: no CARLA artifacts")
	assert.Contains(t, terminal.String(), "gui output", "the GUI must still launch")
}

// TestRun_FailurePromptsOnce verifies the failure path: diagnostic
// printed, acknowledgment prompt shown exactly once, error returned.
func TestRun_FailurePromptsOnce(t *testing.T) {
	cfg := testConfig(t)

	l, terminal := newTestLauncher(t, cfg, 3)
	l.stdin = strings.NewReader("\n")

	report, err := l.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, report.ExitCode)

	out := terminal.String()
	assert.Contains(t, out, "GUI exited with status 3")
	assert.Equal(t, 1, strings.Count(out, "Press Enter to close..."))
}

// TestRun_FailureAckOnEOF verifies a closed stdin (non-interactive run)
// does not hang the failure path.
func TestRun_FailureAckOnEOF(t *testing.T) {
	cfg := testConfig(t)

	l, _ := newTestLauncher(t, cfg, 1)
	l.stdin = strings.NewReader("") // immediate EOF

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = l.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run blocked on acknowledgment despite EOF on stdin")
	}
}

// TestRun_CondaFailureIsTerminal verifies environment resolution failure
// aborts before any launch and is recorded in the log.
func TestRun_CondaFailureIsTerminal(t *testing.T) {
	cfg := testConfig(t)

	l, terminal := newTestLauncher(t, cfg, 0)
	launched := false
	l.resolveEnv = func(context.Context, string, string) (*conda.Activation, error) {
		return nil, assert.AnError
	}
	l.runGUI = func(_ context.Context, _ []string, _ io.Writer) (int, error) {
		launched = true
		return 0, nil
	}

	_, err := l.Run(context.Background())
	require.Error(t, err)
	assert.False(t, launched, "the GUI must not launch without its environment")
	assert.Contains(t, terminal.String(), "error:")

	logged, readErr := os.ReadFile(cfg.GUI.LogPath)
	require.NoError(t, readErr)
	assert.Contains(t, string(logged), "error:")
}

// TestAppendPythonPath exercises the PYTHONPATH merge rules.
func TestAppendPythonPath(t *testing.T) {
	sep := string(os.PathListSeparator)

	tests := []struct {
		name  string
		env   []string
		paths []string
		want  []string
	}{
		{
			name:  "no existing variable",
			env:   []string{"HOME=/root"},
			paths: []string{"/dist/a.egg"},
			want:  []string{"HOME=/root", "PYTHONPATH=/dist/a.egg"},
		},
		{
			name:  "appends to existing value",
			env:   []string{"PYTHONPATH=/site"},
			paths: []string{"/dist/a.egg", "/dist/b.whl"},
			want:  []string{"PYTHONPATH=/site" + sep + "/dist/a.egg" + sep + "/dist/b.whl"},
		},
		{
			name:  "empty existing value",
			env:   []string{"PYTHONPATH="},
			paths: []string{"/dist/a.egg"},
			want:  []string{"PYTHONPATH=/dist/a.egg"},
		},
		{
			name:  "no paths leaves env untouched",
			env:   []string{"PYTHONPATH=/site"},
			paths: nil,
			want:  []string{"PYTHONPATH=/site"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, appendPythonPath(tt.env, tt.paths))
		})
	}
}
