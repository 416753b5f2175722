package conda

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlane-studio/carlactl/internal/model"
)

// fakeConda writes a shell script that mimics the conda binary's JSON
// output and returns its path.
func fakeConda(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conda")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

// TestResolve_AlreadyActive verifies the fast path: when CONDA_PREFIX
// already names the requested environment, no subprocess runs.
func TestResolve_AlreadyActive(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "envs", "carla")
	t.Setenv("CONDA_PREFIX", prefix)

	// A conda binary that would fail loudly if invoked.
	condaBin := fakeConda(t, "echo should-not-run >&2; exit 1")

	act, err := Resolve(context.Background(), condaBin, "carla")
	require.NoError(t, err)
	assert.Equal(t, "carla", act.Name)
	assert.Equal(t, prefix, act.Prefix)
}

// TestResolve_FromEnvList verifies JSON parsing of `conda env list --json`.
func TestResolve_FromEnvList(t *testing.T) {
	t.Setenv("CONDA_PREFIX", "")

	condaBin := fakeConda(t, `cat <<'EOF'
{"envs": ["/opt/conda", "/opt/conda/envs/carla", "/opt/conda/envs/other"]}
EOF`)

	act, err := Resolve(context.Background(), condaBin, "carla")
	require.NoError(t, err)
	assert.Equal(t, "/opt/conda/envs/carla", act.Prefix)
}

// TestResolve_BaseEnv verifies the base env is resolved via root_prefix.
func TestResolve_BaseEnv(t *testing.T) {
	t.Setenv("CONDA_PREFIX", "")

	condaBin := fakeConda(t, `cat <<'EOF'
{"root_prefix": "/opt/conda", "envs": ["/opt/conda"]}
EOF`)

	act, err := Resolve(context.Background(), condaBin, "base")
	require.NoError(t, err)
	assert.Equal(t, "/opt/conda", act.Prefix)
}

// TestResolve_NotFound verifies the dedicated exit code when nothing
// resolves the environment.
func TestResolve_NotFound(t *testing.T) {
	t.Setenv("CONDA_PREFIX", "")
	t.Setenv("HOME", t.TempDir()) // keep conventional-root probing away from the real home

	condaBin := fakeConda(t, `echo '{"envs": []}'`)

	_, err := Resolve(context.Background(), condaBin, "carla")
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitCondaEnvNotFound, cliErr.Code)
}

// TestResolve_ConventionalRootFallback verifies the filesystem probe when
// the conda binary is unavailable.
func TestResolve_ConventionalRootFallback(t *testing.T) {
	t.Setenv("CONDA_PREFIX", "")

	home := t.TempDir()
	t.Setenv("HOME", home)
	envDir := filepath.Join(home, "miniconda3", "envs", "carla")
	require.NoError(t, os.MkdirAll(envDir, 0o755))

	// Point at a conda binary that does not exist.
	missing := filepath.Join(t.TempDir(), "no-conda")

	act, err := Resolve(context.Background(), missing, "carla")
	require.NoError(t, err)
	assert.Equal(t, envDir, act.Prefix)
}

// TestActivation_Environ verifies the projected child environment:
// PATH prepend, conda variables set, base slice untouched.
func TestActivation_Environ(t *testing.T) {
	act := &Activation{Name: "carla", Prefix: "/opt/conda/envs/carla"}

	base := []string{
		"HOME=/home/operator",
		"PATH=/usr/local/bin:/usr/bin",
		"CONDA_PREFIX=/opt/conda/envs/stale",
		"CONDA_DEFAULT_ENV=stale",
	}
	baseCopy := append([]string(nil), base...)

	env := act.Environ(base)

	assert.Equal(t, baseCopy, base, "the base environment must not be mutated")

	joined := strings.Join(env, "\n")
	assert.Contains(t, joined, "PATH=/opt/conda/envs/carla/bin"+string(os.PathListSeparator)+"/usr/local/bin:/usr/bin")
	assert.Contains(t, joined, "CONDA_PREFIX=/opt/conda/envs/carla")
	assert.Contains(t, joined, "CONDA_DEFAULT_ENV=carla")
	assert.NotContains(t, joined, "stale", "stale conda variables must be replaced")
	assert.Contains(t, joined, "HOME=/home/operator")
}

// TestActivation_Environ_NoPath verifies PATH is created when the base
// environment lacks one.
func TestActivation_Environ_NoPath(t *testing.T) {
	act := &Activation{Name: "carla", Prefix: "/envs/carla"}

	env := act.Environ([]string{"HOME=/root"})
	assert.Contains(t, env, "PATH=/envs/carla/bin")
}

// TestActivation_Python verifies the interpreter path helper.
func TestActivation_Python(t *testing.T) {
	act := &Activation{Name: "carla", Prefix: "/envs/carla"}
	assert.Equal(t, "/envs/carla/bin/python", act.Python())
}
