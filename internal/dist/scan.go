// Package dist discovers the versioned CARLA Python artifacts (.egg/.whl
// files) that the GUI and collector import at runtime.
//
// CARLA ships its Python API as version-qualified files like
// carla-0.9.15-py3.7-linux-x86_64.egg under PythonAPI/carla/dist. The
// launcher appends every match to the child process's PYTHONPATH. The
// scan result is an explicit, immutable list built once per launch —
// discovered paths are passed to the launch call, never accumulated into
// this process's own environment.
package dist

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Scan matches the given glob patterns against file names in dir and
// returns the absolute paths of every match.
//
// Behavior:
//   - Zero matches is NOT an error. The caller warns and proceeds —
//     the launched program may have the package installed some other
//     way (pip install, site-packages).
//   - A missing directory is also a zero-match result, for the same
//     reason.
//   - Results are deduplicated (a file matching two patterns appears
//     once) and sorted, so PYTHONPATH ordering is deterministic across
//     runs.
func Scan(dir string, patterns []string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}

	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to access dist directory %s: %w", dir, err)
	}

	seen := make(map[string]struct{})
	var paths []string

	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			// Only malformed patterns error here; report them as the
			// configuration mistakes they are.
			return nil, fmt.Errorf("invalid artifact pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || info.IsDir() {
				continue
			}
			abs, err := filepath.Abs(match)
			if err != nil {
				abs = match
			}
			if _, dup := seen[abs]; dup {
				continue
			}
			seen[abs] = struct{}{}
			paths = append(paths, abs)
		}
	}

	sort.Strings(paths)
	return paths, nil
}
