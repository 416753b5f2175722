// Package conda resolves and "activates" conda runtime environments.
//
// Activation here is not the shell-function dance real conda performs:
// carlactl resolves the environment's prefix directory and constructs an
// explicit child-process environment (PATH prepend, CONDA_PREFIX,
// CONDA_DEFAULT_ENV) that it passes to the launched program. The parent
// process environment is never mutated.
//
// Prefix resolution shells out to the conda binary and parses its JSON
// output with github.com/tidwall/gjson, falling back to probing the
// conventional install locations when no conda binary is on PATH.
package conda

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/openlane-studio/carlactl/internal/model"
)

// Activation is a resolved conda environment, ready to be projected into
// a child process's environment variables.
type Activation struct {
	// Name is the environment name (e.g. "carla").
	Name string

	// Prefix is the environment's root directory
	// (e.g. /home/user/miniconda3/envs/carla).
	Prefix string
}

// Resolve locates the named conda environment and returns its Activation.
//
// Resolution order:
//  1. The already-active environment: when CONDA_PREFIX points at an env
//     with the requested name, no subprocess is needed.
//  2. `conda env list --json`, matching the env directory's base name.
//  3. Conventional install roots (~/miniconda3, ~/anaconda3, /opt/conda).
//
// Returns a CLIError with ExitCondaEnvNotFound when all three fail.
func Resolve(ctx context.Context, condaBin, envName string) (*Activation, error) {
	if envName == "" {
		return nil, model.NewCLIError(model.ExitCondaEnvNotFound,
			"conda environment name must not be empty")
	}

	// Fast path: already activated in the operator's shell.
	if prefix := os.Getenv("CONDA_PREFIX"); prefix != "" && filepath.Base(prefix) == envName {
		return &Activation{Name: envName, Prefix: prefix}, nil
	}

	// Ask conda itself. This is authoritative but requires the binary.
	if prefix, err := queryCondaEnvs(ctx, condaBin, envName); err == nil {
		return &Activation{Name: envName, Prefix: prefix}, nil
	}

	// Last resort: the places conda installs to by default.
	if prefix, ok := probeConventionalRoots(envName); ok {
		return &Activation{Name: envName, Prefix: prefix}, nil
	}

	return nil, model.NewCLIError(model.ExitCondaEnvNotFound,
		fmt.Sprintf("conda environment %q not found (is conda installed and the env created?)", envName))
}

// queryCondaEnvs runs `conda env list --json` and picks the environment
// whose directory base name matches envName.
//
// The JSON shape is {"envs": ["/opt/conda", "/opt/conda/envs/carla", ...]}.
// The base install prefix itself appears in the list; it matches only
// when the operator literally asked for "base", in which case conda
// reports it under its install directory name — so "base" is special-cased
// via `conda info --json`'s root_prefix.
func queryCondaEnvs(ctx context.Context, condaBin, envName string) (string, error) {
	if envName == "base" {
		out, err := runConda(ctx, condaBin, "info", "--json")
		if err != nil {
			return "", err
		}
		root := gjson.GetBytes(out, "root_prefix").String()
		if root == "" {
			return "", fmt.Errorf("conda info reported no root_prefix")
		}
		return root, nil
	}

	out, err := runConda(ctx, condaBin, "env", "list", "--json")
	if err != nil {
		return "", err
	}

	for _, env := range gjson.GetBytes(out, "envs").Array() {
		prefix := env.String()
		if filepath.Base(prefix) == envName {
			return prefix, nil
		}
	}
	return "", fmt.Errorf("environment %q not in conda env list", envName)
}

// runConda executes the conda binary with the given arguments, capturing
// stdout. Stderr is folded into the error message on failure so the
// operator sees conda's own diagnostics.
func runConda(ctx context.Context, condaBin string, args ...string) ([]byte, error) {
	if condaBin == "" {
		condaBin = "conda"
	}

	// #nosec G204 — the binary path and arguments are internal constants
	cmd := exec.CommandContext(ctx, condaBin, args...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := fmt.Sprintf("conda %s failed", strings.Join(args, " "))
		if s := strings.TrimSpace(stderr.String()); s != "" {
			msg = fmt.Sprintf("%s: %s", msg, s)
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}

	return []byte(stdout.String()), nil
}

// probeConventionalRoots checks the default conda install locations for
// an envs/<name> directory.
func probeConventionalRoots(envName string) (string, bool) {
	var roots []string
	if home, err := os.UserHomeDir(); err == nil {
		roots = append(roots,
			filepath.Join(home, "miniconda3"),
			filepath.Join(home, "anaconda3"),
		)
	}
	roots = append(roots, "/opt/conda", "/opt/miniconda3")

	for _, root := range roots {
		prefix := filepath.Join(root, "envs", envName)
		if info, err := os.Stat(prefix); err == nil && info.IsDir() {
			return prefix, true
		}
	}
	return "", false
}

// Environ projects the activation onto a base environment (normally
// os.Environ()) and returns a NEW slice — the base is never modified.
//
// The projection mirrors what `conda activate` exports:
//   - the env's bin directory is prepended to PATH
//   - CONDA_PREFIX and CONDA_DEFAULT_ENV identify the active env
func (a *Activation) Environ(base []string) []string {
	binDir := filepath.Join(a.Prefix, "bin")

	env := make([]string, 0, len(base)+3)
	pathSeen := false

	for _, kv := range base {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			env = append(env, kv)
			continue
		}
		switch key {
		case "PATH":
			env = append(env, "PATH="+binDir+string(os.PathListSeparator)+value)
			pathSeen = true
		case "CONDA_PREFIX", "CONDA_DEFAULT_ENV":
			// Replaced below with the resolved env's values.
		default:
			env = append(env, kv)
		}
	}

	if !pathSeen {
		env = append(env, "PATH="+binDir)
	}
	env = append(env,
		"CONDA_PREFIX="+a.Prefix,
		"CONDA_DEFAULT_ENV="+a.Name,
	)

	return env
}

// Python returns the path of the environment's python interpreter.
// Callers that configured an explicit interpreter name (e.g. "python3")
// can ignore this and rely on the PATH prepend instead.
func (a *Activation) Python() string {
	return filepath.Join(a.Prefix, "bin", "python")
}
