// Package cli — gui.go implements the "carlactl gui" command.
//
// The gui command bootstraps the runtime environment (conda activation,
// versioned CARLA artifact discovery) and launches the GUI entry point
// exactly once, teeing all output to an append-only launch log. On a
// failed launch it holds the terminal open until the operator acknowledges,
// so the diagnostic is not lost with the window.
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openlane-studio/carlactl/internal/launcher"
	"github.com/openlane-studio/carlactl/internal/model"
)

// NewGUICommand creates the "gui" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewGUICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gui",
		Short: "Bootstrap the environment and launch the GUI",
		Long: `Activate the configured conda environment, register the versioned CARLA
Python artifacts on PYTHONPATH, and launch the GUI entry point once.

All bootstrap and GUI output is shown on the terminal and appended to the
launch log. If the GUI exits abnormally, the command waits for an Enter
keystroke before returning, keeping the failure output on screen.

Examples:
  carlactl gui
  carlactl gui --json
  carlactl gui --config deploy/carlactl.yaml`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runGUI(cmd)
		},
	}
}

// runGUI is the main logic function for the gui command.
func runGUI(cmd *cobra.Command) error {
	log := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	l := launcher.New(cfg, log)
	report, runErr := l.Run(cmd.Context())

	// The report is printed even on failure: in JSON mode the wrapper
	// tooling wants the exit code and log path regardless of outcome.
	printLaunchReport(report)
	return runErr
}

// printLaunchReport outputs the gui command results in text or JSON format.
func printLaunchReport(report *model.LaunchReport) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Environment: %s\n", report.CondaEnv)
	fmt.Printf("Launch log:  %s\n", report.LogPath)
	if len(report.ArtifactPaths) > 0 {
		fmt.Println("Artifacts:")
		for _, p := range report.ArtifactPaths {
			fmt.Printf("  %s\n", p)
		}
	}
	fmt.Printf("Exit code:   %d\n", report.ExitCode)
}
