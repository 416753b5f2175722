// Package model defines the domain types and value objects for the
// carlactl CLI.
//
// This package contains pure data structures with no external dependencies:
// the supervised-run report types (AttemptResult, CollectReport), the GUI
// launch report (LaunchReport), and the simulator backend/state enums.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
