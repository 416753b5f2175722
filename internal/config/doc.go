// Package config loads carlactl.yaml, the single configuration file for
// the carlactl CLI.
//
// Configuration is resolved in three layers:
//  1. Built-in defaults matching the stock CARLA directory layout and
//     the historical retry-forever collection behavior.
//  2. carlactl.yaml, found via --config, the current directory, or
//     ~/.config/carlactl/. A partial file overrides only the keys
//     it mentions.
//  3. Per-command flags (--max-attempts, --retry-delay, --profile),
//     applied by the cli package on top of the loaded config.
//
// Durations are written as Go duration strings ("3s", "1m30s") via the
// Duration wrapper type.
package config
