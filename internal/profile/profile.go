// Package profile handles parsing and validation of launch profile files.
//
// A launch profile captures one collection task: which towns to drive,
// how many episodes, how many frames per episode, weather, seeding, and
// traffic density. Profiles use JSONC (JSON with Comments) so operators
// can annotate their presets, which means we strip comments with
// github.com/tidwall/jsonc before parsing with the standard
// encoding/json library.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/openlane-studio/carlactl/internal/model"
)

// knownWeatherModes are the weather generation modes the collector accepts.
var knownWeatherModes = []string{"random", "long_tail", "clear"}

// knownTownModes are the multi-town scheduling modes the collector accepts.
var knownTownModes = []string{"roundrobin", "random"}

// knownSplits are the dataset splits the collector writes into.
var knownSplits = []string{"training", "validation"}

// Profile is one collection preset, decoded from a .jsonc (or plain .json)
// profile file. Zero values mean "let the collector use its own default":
// only fields the profile actually sets are turned into CLI flags.
//
// Several numeric fields use pointers so that an explicit 0 (a valid seed,
// an empty NPC set) can be distinguished from "not specified".
type Profile struct {
	// Name is an optional display name for the preset.
	Name string `json:"name,omitempty"`

	// Towns lists the maps to collect on. One entry runs single-town
	// mode; multiple entries run multi-town mode with TownMode scheduling.
	Towns []string `json:"towns,omitempty"`

	// TownMode schedules multi-town collection: "roundrobin" or "random".
	TownMode string `json:"townMode,omitempty"`

	// Episodes is the number of episodes to record.
	Episodes int `json:"episodes,omitempty"`

	// FramesPerEpisode is the number of frames recorded per episode.
	FramesPerEpisode int `json:"framesPerEpisode,omitempty"`

	// EpisodeStart offsets the episode numbering, for appending to an
	// existing dataset.
	EpisodeStart int `json:"episodeStart,omitempty"`

	// Split selects the dataset split: "training" or "validation".
	Split string `json:"split,omitempty"`

	// WeatherMode selects weather generation: "random", "long_tail",
	// or "clear".
	WeatherMode string `json:"weatherMode,omitempty"`

	// Seed fixes the collector's RNG seed. Pointer so an explicit 0
	// is distinguishable from "unset".
	Seed *int `json:"seed,omitempty"`

	// NumProps is the number of static obstacles to spawn.
	NumProps *int `json:"numProps,omitempty"`

	// NPCVehicles and NPCWalkers set traffic density. Pointers so an
	// explicitly empty world (0) is representable.
	NPCVehicles *int `json:"npcVehicles,omitempty"`
	NPCWalkers  *int `json:"npcWalkers,omitempty"`

	// SkipBadRoads enables the collector's bad-road filtering.
	SkipBadRoads bool `json:"skipBadRoads,omitempty"`
}

// Load reads a profile file, strips JSONC comments, and parses it.
//
// Returns a CLIError with ExitConfigError if the file does not exist or
// does not validate.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(
				model.ExitConfigError,
				fmt.Sprintf("launch profile not found: %s", path),
				err,
			)
		}
		return nil, fmt.Errorf("failed to read launch profile: %w", err)
	}

	// Strip JSONC comments (// and /* */) and trailing commas before
	// parsing. Profiles are operator-maintained files, so comments are
	// the norm rather than the exception.
	cleanJSON := jsonc.ToJSON(data)

	var p Profile
	if err := json.Unmarshal(cleanJSON, &p); err != nil {
		return nil, model.WrapCLIError(
			model.ExitConfigError,
			fmt.Sprintf("failed to parse launch profile %s", path),
			err,
		)
	}

	if err := p.Validate(); err != nil {
		return nil, model.WrapCLIError(
			model.ExitConfigError,
			fmt.Sprintf("invalid launch profile %s", path),
			err,
		)
	}

	return &p, nil
}

// Validate checks enum fields and numeric ranges.
func (p *Profile) Validate() error {
	if p.TownMode != "" && !contains(knownTownModes, p.TownMode) {
		return fmt.Errorf("invalid townMode %q (valid: %s)",
			p.TownMode, strings.Join(knownTownModes, ", "))
	}
	if p.WeatherMode != "" && !contains(knownWeatherModes, p.WeatherMode) {
		return fmt.Errorf("invalid weatherMode %q (valid: %s)",
			p.WeatherMode, strings.Join(knownWeatherModes, ", "))
	}
	if p.Split != "" && !contains(knownSplits, p.Split) {
		return fmt.Errorf("invalid split %q (valid: %s)",
			p.Split, strings.Join(knownSplits, ", "))
	}
	if p.Episodes < 0 {
		return fmt.Errorf("episodes must be >= 0 (got %d)", p.Episodes)
	}
	if p.FramesPerEpisode < 0 {
		return fmt.Errorf("framesPerEpisode must be >= 0 (got %d)", p.FramesPerEpisode)
	}
	if p.EpisodeStart < 0 {
		return fmt.Errorf("episodeStart must be >= 0 (got %d)", p.EpisodeStart)
	}
	for _, town := range p.Towns {
		if strings.TrimSpace(town) == "" {
			return fmt.Errorf("towns must not contain empty entries")
		}
	}
	if p.NPCVehicles != nil && *p.NPCVehicles < 0 {
		return fmt.Errorf("npcVehicles must be >= 0")
	}
	if p.NPCWalkers != nil && *p.NPCWalkers < 0 {
		return fmt.Errorf("npcWalkers must be >= 0")
	}
	if p.NumProps != nil && *p.NumProps < 0 {
		return fmt.Errorf("numProps must be >= 0")
	}
	return nil
}

// Args converts the profile into collector CLI arguments. Only fields the
// profile actually sets produce flags — the collector's own defaults apply
// to everything else.
//
// The returned slice is freshly allocated on every call; callers may
// append to it without affecting the profile.
func (p *Profile) Args() []string {
	var args []string

	switch len(p.Towns) {
	case 0:
		// No towns specified — collector default applies.
	case 1:
		args = append(args, "--town", p.Towns[0])
	default:
		args = append(args, "--towns", strings.Join(p.Towns, ","))
		if p.TownMode != "" {
			args = append(args, "--town_mode", p.TownMode)
		}
	}

	if p.Episodes > 0 {
		args = append(args, "--episodes", fmt.Sprintf("%d", p.Episodes))
	}
	if p.FramesPerEpisode > 0 {
		args = append(args, "--frames_per_episode", fmt.Sprintf("%d", p.FramesPerEpisode))
	}
	if p.EpisodeStart > 0 {
		args = append(args, "--episode_start", fmt.Sprintf("%d", p.EpisodeStart))
	}
	if p.Split != "" {
		args = append(args, "--split", p.Split)
	}
	if p.WeatherMode != "" {
		args = append(args, "--weather_mode", p.WeatherMode)
	}
	if p.Seed != nil {
		args = append(args, "--seed", fmt.Sprintf("%d", *p.Seed))
	}
	if p.NumProps != nil {
		args = append(args, "--num_props", fmt.Sprintf("%d", *p.NumProps))
	}
	if p.NPCVehicles != nil {
		args = append(args, "--num_npc_vehicles", fmt.Sprintf("%d", *p.NPCVehicles))
	}
	if p.NPCWalkers != nil {
		args = append(args, "--num_npc_walkers", fmt.Sprintf("%d", *p.NPCWalkers))
	}
	if p.SkipBadRoads {
		args = append(args, "--skip_bad_roads")
	}

	return args
}

// contains reports whether list includes value.
func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
