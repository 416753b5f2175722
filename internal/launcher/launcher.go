// Package launcher implements the GUI launch pipeline: bootstrap the
// runtime environment, run the GUI once, report the outcome.
//
// The pipeline is bootstrap → launch → report, executed once per
// invocation — there is no retry here. Every step writes through a tee
// so the operator sees output on the terminal while the append-only
// launch log keeps a permanent record across runs.
package launcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openlane-studio/carlactl/internal/conda"
	"github.com/openlane-studio/carlactl/internal/config"
	"github.com/openlane-studio/carlactl/internal/dist"
	"github.com/openlane-studio/carlactl/internal/model"
)

// Launcher runs the GUI launch pipeline. The function fields exist so
// tests can substitute the conda resolution and the GUI process itself;
// New wires in the real implementations.
type Launcher struct {
	cfg *config.Config

	// log is the command's structured logger. Run rewires its output
	// through the launch-log tee for the duration of the pipeline.
	log *logrus.Logger

	// stdin supplies the operator's acknowledgment keystroke.
	stdin io.Reader

	// stdout is the terminal half of the output tee.
	stdout io.Writer

	// sleep implements the post-success pause.
	sleep func(time.Duration)

	// resolveEnv resolves the configured conda environment.
	resolveEnv func(ctx context.Context, condaBin, envName string) (*conda.Activation, error)

	// runGUI executes the GUI program with the prepared environment and
	// returns its exit code. Non-zero codes are data, not errors.
	runGUI func(ctx context.Context, env []string, output io.Writer) (int, error)
}

// New creates a Launcher wired to the real conda resolver and process
// execution.
func New(cfg *config.Config, log *logrus.Logger) *Launcher {
	l := &Launcher{
		cfg:        cfg,
		log:        log,
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		sleep:      time.Sleep,
		resolveEnv: conda.Resolve,
	}
	l.runGUI = l.execGUI
	return l
}

// Run executes the launch pipeline:
//
//  1. Open the append-only launch log and tee all subsequent output to
//     both the terminal and the log.
//  2. Activate the configured conda environment (terminal failure —
//     the GUI cannot run without its interpreter and packages).
//  3. Discover versioned CARLA artifacts and extend PYTHONPATH with the
//     explicit list. Zero artifacts is a warning, not a failure.
//  4. Launch the GUI synchronously, exactly once.
//  5. On non-zero exit, print a diagnostic and hold the terminal open
//     until the operator acknowledges; on success, pause briefly and
//     return.
//
// The returned LaunchReport is filled in as far as the pipeline got.
func (l *Launcher) Run(ctx context.Context) (*model.LaunchReport, error) {
	report := &model.LaunchReport{
		CondaEnv: l.cfg.Conda.Env,
		LogPath:  l.cfg.GUI.LogPath,
	}

	// Step 1: output tee. O_APPEND preserves history across runs — the
	// log is the only persistent record of past launches.
	logFile, err := openLaunchLog(l.cfg.GUI.LogPath)
	if err != nil {
		return report, model.WrapCLIError(model.ExitGeneralError,
			"failed to open launch log", err)
	}
	defer func() { _ = logFile.Close() }()

	tee := io.MultiWriter(l.stdout, logFile)

	// Launcher diagnostics join the tee as well: the launch log is the
	// only persistent record of the run, so logrus lines must land in it,
	// not just on the terminal.
	prevLogOut := l.log.Out
	l.log.SetOutput(io.MultiWriter(prevLogOut, logFile))
	defer l.log.SetOutput(prevLogOut)

	fmt.Fprintf(tee, "[%s] launching GUI (env=%s)\n",
		time.Now().Format(time.RFC3339), l.cfg.Conda.Env)

	// Step 2: runtime environment activation.
	activation, err := l.resolveEnv(ctx, l.cfg.Conda.Conda, l.cfg.Conda.Env)
	if err != nil {
		fmt.Fprintf(tee, "error: %v\n", err)
		return report, err
	}
	l.log.WithField("prefix", activation.Prefix).Info("conda environment resolved")

	// Step 3: versioned artifact discovery. The list is built once and
	// passed explicitly into the child environment.
	artifacts, err := dist.Scan(l.cfg.Dist.Dir, l.cfg.Dist.Patterns)
	if err != nil {
		fmt.Fprintf(tee, "error: %v\n", err)
		return report, model.WrapCLIError(model.ExitConfigError,
			"artifact discovery failed", err)
	}
	report.ArtifactPaths = artifacts

	if len(artifacts) == 0 {
		// Non-fatal: the CARLA package may be installed into the env
		// some other way. Warn and keep going.
		fmt.Fprintf(tee, "warning: no CARLA artifacts matched %v in %s — launching anyway\n",
			l.cfg.Dist.Patterns, l.cfg.Dist.Dir)
	} else {
		for _, p := range artifacts {
			fmt.Fprintf(tee, "registered artifact: %s\n", p)
		}
	}

	env := appendPythonPath(activation.Environ(os.Environ()), artifacts)

	// Step 4: single synchronous launch.
	code, err := l.runGUI(ctx, env, tee)
	if err != nil {
		fmt.Fprintf(tee, "error: %v\n", err)
		return report, err
	}
	report.ExitCode = code

	// Step 5: report.
	if code != 0 {
		fmt.Fprintf(tee, "GUI exited with status %d — see %s for details\n",
			code, l.cfg.GUI.LogPath)
		l.awaitAcknowledgment(tee)
		return report, model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("GUI exited with status %d", code))
	}

	fmt.Fprintln(tee, "GUI exited normally")
	l.sleep(l.cfg.GUI.SuccessDelay.Std())
	return report, nil
}

// execGUI runs the configured GUI entry point under the prepared
// environment. The interpreter comes from the collector config so both
// entry points share one interpreter setting; thanks to the PATH prepend
// it resolves inside the activated env.
func (l *Launcher) execGUI(ctx context.Context, env []string, output io.Writer) (int, error) {
	// #nosec G204 — interpreter and script come from carlactl.yaml
	cmd := exec.CommandContext(ctx, l.cfg.Collector.Python, l.cfg.GUI.Script)
	cmd.Dir = l.cfg.GUI.WorkDir
	cmd.Env = env
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.Stdin = l.stdin

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if ctx.Err() != nil {
		return 0, fmt.Errorf("GUI interrupted: %w", ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 0, fmt.Errorf("failed to run GUI: %w", err)
}

// awaitAcknowledgment holds the terminal open until the operator presses
// Enter, so the failure diagnostic is not lost when the window closes.
// EOF (non-interactive stdin) is treated as acknowledgment.
func (l *Launcher) awaitAcknowledgment(tee io.Writer) {
	fmt.Fprint(tee, "Press Enter to close...")
	reader := bufio.NewReader(l.stdin)
	_, _ = reader.ReadString('\n')
}

// openLaunchLog opens the launch log for appending, creating it (and its
// directory) when missing. The log is never truncated: history accumulates
// across runs.
func openLaunchLog(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// appendPythonPath returns a new environment slice with the artifact
// paths appended to PYTHONPATH (preserving any existing value). The input
// slice is not modified.
func appendPythonPath(env []string, paths []string) []string {
	if len(paths) == 0 {
		return env
	}

	addition := strings.Join(paths, string(os.PathListSeparator))

	out := make([]string, 0, len(env)+1)
	found := false
	for _, kv := range env {
		if value, ok := strings.CutPrefix(kv, "PYTHONPATH="); ok {
			found = true
			if value == "" {
				out = append(out, "PYTHONPATH="+addition)
			} else {
				out = append(out, "PYTHONPATH="+value+string(os.PathListSeparator)+addition)
			}
			continue
		}
		out = append(out, kv)
	}
	if !found {
		out = append(out, "PYTHONPATH="+addition)
	}
	return out
}
