// Package cli — collect.go implements the "carlactl collect" command.
//
// The collect command is the supervised data-collection loop. It assembles
// the collector command line from config plus an optional launch profile,
// then hands it to the supervisor, which re-runs it until a clean exit,
// sweeping stray simulator processes between attempts.
//
// Orchestration steps:
//  1. Load carlactl.yaml and the optional launch profile
//  2. Apply command-line overrides to the retry policy
//  3. Build the collector command (--dry-run stops here and prints it)
//  4. Run the supervision loop to completion
//  5. Output the attempt report (text or JSON)
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/openlane-studio/carlactl/internal/collector"
	"github.com/openlane-studio/carlactl/internal/model"
	"github.com/openlane-studio/carlactl/internal/profile"
	"github.com/openlane-studio/carlactl/internal/simulator"
	"github.com/openlane-studio/carlactl/internal/supervise"
)

// collectFlags holds the flag values for the collect command.
// These are bound to cobra flags in NewCollectCommand.
type collectFlags struct {
	profile     string        // --profile: launch profile JSON/JSONC file
	dryRun      bool          // --dry-run: print the command line and exit
	maxAttempts int           // --max-attempts: override retry.max_attempts
	retryDelay  time.Duration // --retry-delay: override retry.delay
}

// NewCollectCommand creates the "collect" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewCollectCommand() *cobra.Command {
	flags := &collectFlags{}

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run the data collector under crash-restart supervision",
		Long: `Run the external data collector and keep restarting it until it exits
cleanly. After every abnormal exit, lingering simulator processes are killed
before the next attempt, because a wedged simulator would make every retry
fail the same way. The collector resumes from its own checkpoints, so each
restart makes forward progress.

Examples:
  carlactl collect
  carlactl collect --profile profiles/town01-night.jsonc
  carlactl collect --max-attempts 5 --retry-delay 10s
  carlactl collect --dry-run --profile profiles/smoke.jsonc`,

		// No positional arguments: everything comes from config and flags.
		Args: cobra.NoArgs,

		// RunE is used instead of Run so we can return errors. Cobra will
		// pass them to the Execute error handler in root.go.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, flags)
		},
	}

	// Register command-specific flags. The retry flags override the config
	// file only when explicitly set (checked via Flags().Changed), so the
	// zero defaults never leak into the policy.
	cmd.Flags().StringVarP(&flags.profile, "profile", "p", "", "Launch profile file (JSON/JSONC)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Print the collector command line without running it")
	cmd.Flags().IntVar(&flags.maxAttempts, "max-attempts", 0, "Maximum collector invocations, 0 for unbounded (default: config value)")
	cmd.Flags().DurationVar(&flags.retryDelay, "retry-delay", 0, "Pause before each retry (default: config value)")

	return cmd
}

// runCollect is the main orchestration function for the collect command.
func runCollect(cmd *cobra.Command, flags *collectFlags) error {
	log := newLogger()

	// Step 1: Configuration and optional profile.
	cfg, err := loadConfig()
	if err != nil {
		return err // Load already returns CLIError with ExitConfigError
	}

	var prof *profile.Profile
	if flags.profile != "" {
		prof, err = profile.Load(flags.profile)
		if err != nil {
			return err
		}
		log.WithField("profile", prof.Name).Info("loaded launch profile")
	}

	// Step 2: Retry policy, with flag overrides on top of the config file.
	policy := supervise.Policy{
		Delay:         cfg.Retry.Delay.Std(),
		BackoffFactor: cfg.Retry.BackoffFactor,
		MaxDelay:      cfg.Retry.MaxDelay.Std(),
		MaxAttempts:   cfg.Retry.MaxAttempts,
	}
	if cmd.Flags().Changed("max-attempts") {
		policy.MaxAttempts = flags.maxAttempts
	}
	if cmd.Flags().Changed("retry-delay") {
		policy.Delay = flags.retryDelay
		if policy.MaxDelay < policy.Delay {
			policy.MaxDelay = policy.Delay
		}
	}

	// Step 3: The collector command, frozen once so every retry runs the
	// identical command line. Its output streams pass through to ours —
	// the collector prints its own episode/frame progress.
	command := collector.New(&cfg.Collector, prof, os.Stdout, os.Stderr)

	if flags.dryRun {
		fmt.Println(command.String())
		return nil
	}

	// Step 4: Supervised run. The simulator doubles as the between-attempt
	// reaper; with the docker backend it also kills the managed container.
	sim := simulator.New(cfg.Simulator, cfg.Collector.Host, cfg.Backend(), log)
	sup := supervise.New(command, sim, policy, log)

	report, runErr := sup.Run(cmd.Context())

	// Step 5: Output. The report is printed even when the run failed, so
	// the operator (or CI) sees how far the loop got before giving up.
	printCollectReport(report)
	return runErr
}

// printCollectReport outputs the collect command results in text or JSON
// format.
func printCollectReport(report *model.CollectReport) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
		return
	}

	if report.TotalAttempts() == 0 {
		fmt.Println("No collector attempts were made.")
		return
	}

	fmt.Printf("%-8s %-10s %-12s %s\n", "ATTEMPT", "EXIT", "DURATION", "SIMULATOR SWEEP")
	for _, attempt := range report.Attempts {
		sweep := "-"
		if attempt.KilledSimulator {
			sweep = "yes"
		}
		fmt.Printf("%-8d %-10d %-12s %s\n",
			attempt.Attempt,
			attempt.ExitCode,
			attempt.Duration.Round(time.Millisecond),
			sweep,
		)
	}

	if report.Succeeded {
		fmt.Printf("\nCollection completed after %d attempt(s).\n", report.TotalAttempts())
	} else {
		fmt.Printf("\nCollection did not complete (%d attempt(s)).\n", report.TotalAttempts())
	}
}
