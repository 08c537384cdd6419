package generation

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/digibankup/internal/logger"
)

// mkGen creates generation n containing a marker file with the given content.
func mkGen(t *testing.T, root string, n int, marker string) {
	t.Helper()
	dir := filepath.Join(root, strconv.Itoa(n))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker"), []byte(marker), 0o644))
}

func readMarker(t *testing.T, root string, n int) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, strconv.Itoa(n), "marker"))
	require.NoError(t, err)
	return string(data)
}

func TestPrepareStaging_CreatesEmptyDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "backups")
	r := NewRotator(root, 3, logger.Nop())

	staging, err := r.PrepareStaging()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "0"), staging)

	entries, err := os.ReadDir(staging)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPrepareStaging_IsIdempotentOverLeftovers(t *testing.T) {
	root := t.TempDir()
	r := NewRotator(root, 3, logger.Nop())

	// Leftover of an interrupted run, nested content included.
	mkGen(t, root, 0, "partial")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "0", "fog", "images", "empty"), 0o755))

	for i := 0; i < 2; i++ {
		staging, err := r.PrepareStaging()
		require.NoError(t, err)
		entries, err := os.ReadDir(staging)
		require.NoError(t, err)
		assert.Empty(t, entries, "attempt %d", i)
	}
}

func TestPrepareStaging_ReplacesFileAtStagingPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "0"), []byte("junk"), 0o644))
	r := NewRotator(root, 3, logger.Nop())

	staging, err := r.PrepareStaging()
	require.NoError(t, err)
	info, err := os.Stat(staging)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRotate_FirstRun(t *testing.T) {
	root := t.TempDir()
	r := NewRotator(root, 3, logger.Nop())
	mkGen(t, root, 0, "new")

	require.NoError(t, r.Rotate())

	gens, err := r.Generations()
	require.NoError(t, err)
	assert.Equal(t, []int{1}, gens)
	assert.Equal(t, "new", readMarker(t, root, 1))
}

func TestRotate_DropsOldestAtRetention(t *testing.T) {
	root := t.TempDir()
	r := NewRotator(root, 3, logger.Nop())
	mkGen(t, root, 1, "g1")
	mkGen(t, root, 2, "g2")
	mkGen(t, root, 3, "g3")
	mkGen(t, root, 0, "new")

	require.NoError(t, r.Rotate())

	gens, err := r.Generations()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, gens)
	assert.Equal(t, "new", readMarker(t, root, 1))
	assert.Equal(t, "g1", readMarker(t, root, 2))
	assert.Equal(t, "g2", readMarker(t, root, 3))
}

func TestRotate_SuccessiveRunsStayContiguous(t *testing.T) {
	for retention := 1; retention <= 4; retention++ {
		t.Run(strconv.Itoa(retention), func(t *testing.T) {
			root := t.TempDir()
			r := NewRotator(root, retention, logger.Nop())

			for run := 1; run <= retention+2; run++ {
				staging, err := r.PrepareStaging()
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(filepath.Join(staging, "marker"), []byte(strconv.Itoa(run)), 0o644))
				require.NoError(t, r.Rotate())

				gens, err := r.Generations()
				require.NoError(t, err)
				want := make([]int, min(run, retention))
				for i := range want {
					want[i] = i + 1
				}
				assert.Equal(t, want, gens, "after run %d", run)
				assert.Equal(t, strconv.Itoa(run), readMarker(t, root, 1))
				assert.Equal(t, strconv.Itoa(run-len(want)+1), readMarker(t, root, len(want)))
			}
		})
	}
}

func TestRotate_IgnoresNonGenerationEntries(t *testing.T) {
	root := t.TempDir()
	r := NewRotator(root, 3, logger.Nop())
	mkGen(t, root, 0, "new")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "lost+found"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "01"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("x"), 0o644))

	require.NoError(t, r.Rotate())

	assert.DirExists(t, filepath.Join(root, "lost+found"))
	assert.DirExists(t, filepath.Join(root, "01"))
	assert.FileExists(t, filepath.Join(root, "README"))
	assert.Equal(t, "new", readMarker(t, root, 1))
}

func TestRotate_GapsArePrunedToRetention(t *testing.T) {
	root := t.TempDir()
	r := NewRotator(root, 3, logger.Nop())
	mkGen(t, root, 0, "new")
	mkGen(t, root, 1, "g1")
	mkGen(t, root, 5, "g5")

	require.NoError(t, r.Rotate())

	gens, err := r.Generations()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, gens)
}

func TestRotate_RequiresStaging(t *testing.T) {
	root := t.TempDir()
	mkGen(t, root, 1, "g1")
	r := NewRotator(root, 3, logger.Nop())

	require.ErrorIs(t, r.Rotate(), ErrNoStaging)
	assert.Equal(t, "g1", readMarker(t, root, 1), "nothing renamed")
}

func TestRotate_ConflictingFileAbortsBeforeRenaming(t *testing.T) {
	root := t.TempDir()
	r := NewRotator(root, 3, logger.Nop())
	mkGen(t, root, 0, "new")
	mkGen(t, root, 1, "g1")
	require.NoError(t, os.WriteFile(filepath.Join(root, "2"), []byte("file"), 0o644))

	require.ErrorIs(t, r.Rotate(), ErrGenerationConflict)
	assert.Equal(t, "new", readMarker(t, root, 0))
	assert.Equal(t, "g1", readMarker(t, root, 1))
}

func TestGenerations_MissingRoot(t *testing.T) {
	r := NewRotator(filepath.Join(t.TempDir(), "absent"), 3, logger.Nop())
	gens, err := r.Generations()
	require.NoError(t, err)
	assert.Empty(t, gens)
}

func TestParseGeneration(t *testing.T) {
	tests := map[string]bool{
		"0": true, "1": true, "16": true,
		"01": false, "": false, "-1": false, "+1": false, "1a": false, "x": false,
	}
	for name, want := range tests {
		_, ok := parseGeneration(name)
		assert.Equal(t, want, ok, name)
	}
}

func TestRemoveTree_DoesNotFollowSymlinks(t *testing.T) {
	base := t.TempDir()
	outside := filepath.Join(base, "outside")
	require.NoError(t, os.MkdirAll(outside, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "keep"), []byte("keep"), 0o644))

	tree := filepath.Join(base, "tree")
	require.NoError(t, os.MkdirAll(filepath.Join(tree, "a", "b", "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tree, "a", "file"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(tree, "a", "dirlink")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "keep"), filepath.Join(tree, "filelink")))
	require.NoError(t, os.Symlink(filepath.Join(base, "nowhere"), filepath.Join(tree, "dangling")))

	require.NoError(t, RemoveTree(tree))

	assert.NoDirExists(t, tree)
	assert.FileExists(t, filepath.Join(outside, "keep"))
	require.NoError(t, RemoveTree(tree), "missing path is fine")
}
