package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlane-studio/carlactl/internal/model"
)

// writeConfig writes a config file into a temp directory and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "carlactl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestLoad_Defaults verifies that a missing config file yields the built-in
// defaults: retry forever with a 3 second constant delay, kill CarlaUE4
// between attempts.
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err, "an explicit path that does not exist is an error")

	// No explicit path and no file in the search paths → defaults.
	// Run from a temp dir so a developer's own carlactl.yaml is not picked up.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err = Load("")
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Retry.Delay.Std())
	assert.Equal(t, 1.0, cfg.Retry.BackoffFactor)
	assert.Equal(t, 0, cfg.Retry.MaxAttempts, "default retry budget is unbounded")
	assert.Equal(t, "CarlaUE4", cfg.Simulator.ProcessName)
	assert.Equal(t, model.BackendProcess, cfg.Backend())
	assert.Equal(t, "carla", cfg.Conda.Env)
	assert.NotEmpty(t, cfg.Dist.Patterns)
}

// TestLoad_PartialOverride verifies that a partial YAML file overrides only
// the keys it mentions, leaving the rest at their defaults.
func TestLoad_PartialOverride(t *testing.T) {
	path := writeConfig(t, `
retry:
  delay: 5s
  max_delay: 2m
  backoff_factor: 2.0
  max_attempts: 10
simulator:
  backend: docker
  image: carlasim/carla:0.10.0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	// Overridden keys.
	assert.Equal(t, 5*time.Second, cfg.Retry.Delay.Std())
	assert.Equal(t, 2*time.Minute, cfg.Retry.MaxDelay.Std())
	assert.Equal(t, 2.0, cfg.Retry.BackoffFactor)
	assert.Equal(t, 10, cfg.Retry.MaxAttempts)
	assert.Equal(t, model.BackendDocker, cfg.Backend())
	assert.Equal(t, "carlasim/carla:0.10.0", cfg.Simulator.Image)

	// Untouched keys keep their defaults.
	assert.Equal(t, "CarlaUE4", cfg.Simulator.ProcessName)
	assert.Equal(t, "main.py", cfg.Collector.Script)
	assert.Equal(t, 2000, cfg.Collector.Port)
}

// TestLoad_UnknownKeyRejected verifies that typos in key names are an
// error rather than silently ignored configuration.
func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, `
retry:
  dellay: 5s
`)

	_, err := Load(path)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitConfigError, cliErr.Code)
}

// TestLoad_InvalidDuration verifies duration parse failures are reported
// as config errors.
func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
retry:
  delay: three seconds
`)

	_, err := Load(path)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitConfigError, cliErr.Code)
}

// TestValidate covers the cross-field constraints.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Simulator.Backend = "vm" },
			wantErr: "invalid simulator backend",
		},
		{
			name:    "empty process name",
			mutate:  func(c *Config) { c.Simulator.ProcessName = "" },
			wantErr: "process_name",
		},
		{
			name:    "backoff factor below one",
			mutate:  func(c *Config) { c.Retry.BackoffFactor = 0.5 },
			wantErr: "backoff_factor",
		},
		{
			name:    "max delay below initial delay",
			mutate:  func(c *Config) { c.Retry.MaxDelay = Duration(time.Second) },
			wantErr: "max_delay",
		},
		{
			name:    "negative max attempts",
			mutate:  func(c *Config) { c.Retry.MaxAttempts = -1 },
			wantErr: "max_attempts",
		},
		{
			name:    "empty conda env",
			mutate:  func(c *Config) { c.Conda.Env = "" },
			wantErr: "conda.env",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestDuration_Marshal verifies the YAML round-trip representation.
func TestDuration_Marshal(t *testing.T) {
	d := Duration(90 * time.Second)
	out, err := d.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", out)
}
