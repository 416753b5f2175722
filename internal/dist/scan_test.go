package dist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// touch creates an empty file under dir.
func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}

// TestScan_VersionedArtifacts verifies matching, ordering, and that
// non-matching files are ignored.
func TestScan_VersionedArtifacts(t *testing.T) {
	dir := t.TempDir()
	egg := touch(t, dir, "carla-0.9.15-py3.7-linux-x86_64.egg")
	whl := touch(t, dir, "carla-0.9.15-cp310-cp310-manylinux_2_27_x86_64.whl")
	touch(t, dir, "README.md")
	touch(t, dir, "numpy-1.24.0.whl")

	paths, err := Scan(dir, []string{"carla-*.egg", "carla-*.whl"})
	require.NoError(t, err)

	// Sorted: the .whl name sorts before the .egg name.
	assert.Equal(t, []string{whl, egg}, paths)
}

// TestScan_NoMatches verifies the zero-match contract: empty result,
// no error — the launcher warns and proceeds.
func TestScan_NoMatches(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "notes.txt")

	paths, err := Scan(dir, []string{"carla-*.egg"})
	require.NoError(t, err)
	assert.Empty(t, paths)
}

// TestScan_MissingDirectory verifies a missing dist directory is treated
// like zero matches, not an error.
func TestScan_MissingDirectory(t *testing.T) {
	paths, err := Scan(filepath.Join(t.TempDir(), "no-such-dist"), []string{"carla-*.egg"})
	require.NoError(t, err)
	assert.Empty(t, paths)
}

// TestScan_Deduplication verifies a file matching multiple patterns
// appears once.
func TestScan_Deduplication(t *testing.T) {
	dir := t.TempDir()
	egg := touch(t, dir, "carla-0.9.15-py3.7.egg")

	paths, err := Scan(dir, []string{"carla-*.egg", "carla-0.9.15*"})
	require.NoError(t, err)
	assert.Equal(t, []string{egg}, paths)
}

// TestScan_DirectoriesIgnored verifies that a directory matching the
// pattern is not treated as an artifact.
func TestScan_DirectoriesIgnored(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "carla-0.9.15-build.egg"), 0o755))
	egg := touch(t, dir, "carla-0.9.14-py3.7.egg")

	paths, err := Scan(dir, []string{"carla-*.egg"})
	require.NoError(t, err)
	assert.Equal(t, []string{egg}, paths)
}

// TestScan_InvalidPattern verifies malformed globs surface as errors.
func TestScan_InvalidPattern(t *testing.T) {
	dir := t.TempDir()
	_, err := Scan(dir, []string{"carla-[.egg"})
	assert.Error(t, err)
}
