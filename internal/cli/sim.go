// Package cli — sim.go implements the "carlactl sim" command group.
//
// The sim commands control the external simulator directly, outside of any
// supervised collection run: start it, stop it, or report what is running.
// The backend (local process vs. managed Docker container) comes from
// carlactl.yaml.
package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openlane-studio/carlactl/internal/config"
	"github.com/openlane-studio/carlactl/internal/simulator"
)

// NewSimCommand creates the "sim" command group with its status, start,
// and stop subcommands. It is called from NewRootCommand.
func NewSimCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Control the CARLA simulator",
		Long: `Inspect and control the external simulator.

The simulator backend is configured in carlactl.yaml: "process" controls a
locally installed binary, "docker" manages a labeled container created from
the configured image.

Examples:
  carlactl sim status
  carlactl sim start
  carlactl sim stop`,
	}

	cmd.AddCommand(newSimStatusCommand())
	cmd.AddCommand(newSimStartCommand())
	cmd.AddCommand(newSimStopCommand())

	return cmd
}

// newSimulator builds the configured Simulator for the sim subcommands.
func newSimulator() (*simulator.Simulator, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	sim := simulator.New(cfg.Simulator, cfg.Collector.Host, cfg.Backend(), newLogger())
	return sim, cfg, nil
}

// newSimStatusCommand creates the "sim status" subcommand.
func newSimStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the simulator's current state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sim, cfg, err := newSimulator()
			if err != nil {
				return err
			}
			status, err := sim.Check(cmd.Context())
			if err != nil {
				return err
			}
			printSimStatus(status, cfg)
			return nil
		},
	}
}

// newSimStartCommand creates the "sim start" subcommand.
func newSimStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the simulator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sim, cfg, err := newSimulator()
			if err != nil {
				return err
			}
			status, err := sim.Start(cmd.Context())
			if err != nil {
				return err
			}
			printSimStatus(status, cfg)
			return nil
		},
	}
}

// newSimStopCommand creates the "sim stop" subcommand.
func newSimStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the simulator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sim, _, err := newSimulator()
			if err != nil {
				return err
			}
			if err := sim.Stop(cmd.Context()); err != nil {
				return err
			}
			if !IsJSONOutput() {
				fmt.Println("Simulator stopped.")
			}
			return nil
		},
	}
}

// printSimStatus outputs a simulator status in text or JSON format.
func printSimStatus(status *simulator.Status, cfg *config.Config) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("State:     %s\n", status.State)
	if len(status.PIDs) > 0 {
		pids := make([]string, 0, len(status.PIDs))
		for _, pid := range status.PIDs {
			pids = append(pids, fmt.Sprintf("%d", pid))
		}
		fmt.Printf("Processes: %s (%s)\n", strings.Join(pids, ", "), cfg.Simulator.ProcessName)
	}
	if status.ContainerID != "" {
		fmt.Printf("Container: %s (%s)\n", shortID(status.ContainerID), status.ContainerState)
	}
	fmt.Printf("RPC port:  %d listening=%t\n", cfg.Simulator.RPCPort, status.RPCListening)
}

// shortID truncates a container ID to the familiar 12-character form.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
