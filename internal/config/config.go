package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openlane-studio/carlactl/internal/model"
)

// Duration wraps time.Duration with YAML support, so the config file can
// say "3s" or "1m30s" instead of raw nanosecond integers.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string (e.g. "3s") from YAML.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back in its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// CollectorConfig describes how to invoke the external collector program.
// The collector is a black box: it maintains its own checkpoint/resume
// state, so re-invoking it after a crash makes forward progress.
type CollectorConfig struct {
	// Python is the interpreter used to run the collector script.
	// Under conda activation this resolves inside the activated env.
	Python string `yaml:"python"`

	// Script is the path to the collector entry point (main.py).
	Script string `yaml:"script"`

	// WorkDir is the working directory for the collector process.
	// Empty means inherit the current directory.
	WorkDir string `yaml:"work_dir"`

	// Host and Port locate the simulator RPC endpoint.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// TrafficManagerPort is the CARLA traffic manager port.
	TrafficManagerPort int `yaml:"tm_port"`

	// ExtraArgs are appended verbatim after the generated arguments,
	// for collector flags carlactl does not model.
	ExtraArgs []string `yaml:"extra_args"`
}

// RetryConfig is the supervision policy for the collect command.
//
// The defaults preserve the classic contract: retry forever, constant
// 3 second delay. Setting BackoffFactor above 1.0 switches to exponential
// backoff capped at MaxDelay; setting MaxAttempts above 0 bounds the loop.
type RetryConfig struct {
	// Delay is the pause before each retry (initial delay when backoff
	// is enabled).
	Delay Duration `yaml:"delay"`

	// BackoffFactor multiplies the delay after each failed attempt.
	// 1.0 (the default) keeps the delay constant.
	BackoffFactor float64 `yaml:"backoff_factor"`

	// MaxDelay caps the delay growth when BackoffFactor > 1.
	MaxDelay Duration `yaml:"max_delay"`

	// MaxAttempts bounds the number of collector invocations.
	// 0 means unbounded — keep restarting until a clean exit.
	MaxAttempts int `yaml:"max_attempts"`
}

// SimulatorConfig describes the external simulator and how to control it.
type SimulatorConfig struct {
	// ProcessName is the executable name the failure sweep kills.
	// Substring match, so "CarlaUE4" also catches "CarlaUE4-Linux-Shipping".
	ProcessName string `yaml:"process_name"`

	// Backend selects process or docker control (see model.SimulatorBackend).
	Backend string `yaml:"backend"`

	// Binary is the local simulator launcher, used by `sim start` with
	// the process backend.
	Binary string `yaml:"binary"`

	// Image is the simulator container image for the docker backend.
	Image string `yaml:"image"`

	// ContainerName names the managed simulator container.
	ContainerName string `yaml:"container_name"`

	// RPCPort is the simulator's RPC listen port, probed by `sim status`.
	RPCPort int `yaml:"rpc_port"`

	// ExtraArgs are passed to the simulator on `sim start`.
	ExtraArgs []string `yaml:"extra_args"`
}

// CondaConfig names the runtime environment activated before the GUI runs.
type CondaConfig struct {
	// Env is the conda environment name to activate.
	Env string `yaml:"env"`

	// Conda is the conda executable used to resolve environment prefixes.
	Conda string `yaml:"conda"`
}

// DistConfig locates the versioned CARLA Python artifacts.
type DistConfig struct {
	// Dir is the directory scanned for artifacts
	// (typically <CARLA_ROOT>/PythonAPI/carla/dist).
	Dir string `yaml:"dir"`

	// Patterns are the version-qualified glob patterns matched against
	// file names in Dir. Every match is appended to PYTHONPATH.
	Patterns []string `yaml:"patterns"`
}

// GUIConfig describes the GUI entry point and launch logging.
type GUIConfig struct {
	// Script is the GUI entry point run under the activated environment.
	Script string `yaml:"script"`

	// WorkDir is the working directory for the GUI process.
	WorkDir string `yaml:"work_dir"`

	// LogPath is the append-only file that captures the combined
	// bootstrap and GUI output alongside the terminal.
	LogPath string `yaml:"log_path"`

	// SuccessDelay is the short pause before exiting after a clean
	// GUI exit, so the final console lines remain visible.
	SuccessDelay Duration `yaml:"success_delay"`
}

// Config is the root of carlactl.yaml.
type Config struct {
	Collector CollectorConfig `yaml:"collector"`
	Retry     RetryConfig     `yaml:"retry"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Conda     CondaConfig     `yaml:"conda"`
	Dist      DistConfig      `yaml:"dist"`
	GUI       GUIConfig       `yaml:"gui"`
}

// Default returns the configuration used when no carlactl.yaml exists.
// The values match the stock CARLA layout.
func Default() *Config {
	return &Config{
		Collector: CollectorConfig{
			Python:             "python",
			Script:             "main.py",
			Host:               "127.0.0.1",
			Port:               2000,
			TrafficManagerPort: 8000,
		},
		Retry: RetryConfig{
			Delay:         Duration(3 * time.Second),
			BackoffFactor: 1.0,
			MaxDelay:      Duration(60 * time.Second),
			MaxAttempts:   0,
		},
		Simulator: SimulatorConfig{
			ProcessName:   "CarlaUE4",
			Backend:       string(model.BackendProcess),
			Binary:        "CarlaUE4.sh",
			Image:         "carlasim/carla:0.9.15",
			ContainerName: "carlactl-simulator",
			RPCPort:       2000,
		},
		Conda: CondaConfig{
			Env:   "carla",
			Conda: "conda",
		},
		Dist: DistConfig{
			Dir:      filepath.Join("PythonAPI", "carla", "dist"),
			Patterns: []string{"carla-*.egg", "carla-*.whl"},
		},
		GUI: GUIConfig{
			Script:       "studio.py",
			LogPath:      filepath.Join("logs", "launcher.log"),
			SuccessDelay: Duration(2 * time.Second),
		},
	}
}

// DefaultSearchPaths returns the locations probed when --config is not
// given: the current directory first, then the per-user config directory.
func DefaultSearchPaths() []string {
	paths := []string{"carlactl.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "carlactl", "carlactl.yaml"))
	}
	return paths
}

// Load reads the configuration from the given path. When path is empty,
// the default search paths are probed and the first existing file wins;
// if none exists, the built-in defaults are returned unchanged.
//
// The file is decoded over the defaults, so a partial config only
// overrides the keys it mentions.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range DefaultSearchPaths() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			// No config file anywhere — run on defaults.
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError,
			fmt.Sprintf("failed to read config file %s", path), err)
	}

	// KnownFields makes typos in key names an error instead of silently
	// ignored configuration.
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError,
			fmt.Sprintf("failed to parse config file %s", path), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError,
			fmt.Sprintf("invalid config file %s", path), err)
	}

	return cfg, nil
}

// Validate checks cross-field constraints that YAML decoding cannot express.
func (c *Config) Validate() error {
	if _, err := model.ParseSimulatorBackend(c.Simulator.Backend); err != nil {
		return err
	}
	if c.Simulator.ProcessName == "" {
		return fmt.Errorf("simulator.process_name must not be empty")
	}
	if c.Retry.Delay.Std() < 0 {
		return fmt.Errorf("retry.delay must not be negative")
	}
	if c.Retry.BackoffFactor < 1.0 {
		return fmt.Errorf("retry.backoff_factor must be >= 1.0 (got %v)", c.Retry.BackoffFactor)
	}
	if c.Retry.MaxDelay.Std() < c.Retry.Delay.Std() {
		return fmt.Errorf("retry.max_delay (%s) must be >= retry.delay (%s)",
			c.Retry.MaxDelay.Std(), c.Retry.Delay.Std())
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must be >= 0 (0 means unbounded)")
	}
	if c.Collector.Script == "" {
		return fmt.Errorf("collector.script must not be empty")
	}
	if c.GUI.Script == "" {
		return fmt.Errorf("gui.script must not be empty")
	}
	if c.Conda.Env == "" {
		return fmt.Errorf("conda.env must not be empty")
	}
	return nil
}

// Backend returns the parsed simulator backend. Validate guarantees the
// string form is well-formed, so this never fails after Load.
func (c *Config) Backend() model.SimulatorBackend {
	backend, err := model.ParseSimulatorBackend(c.Simulator.Backend)
	if err != nil {
		return model.BackendProcess
	}
	return backend
}
