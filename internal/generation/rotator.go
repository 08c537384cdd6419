// Package generation manages the numbered backup directories under the
// backups root. Generation 0 is the staging slot of the running backup,
// 1 is the newest completed backup and higher numbers are older.
package generation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/kebairia/digibankup/internal/logger"
)

// Staging is the generation number of the backup being produced.
const Staging = 0

var (
	// ErrNoStaging is returned by Rotate when no staged backup exists.
	ErrNoStaging = errors.New("staging generation does not exist")
	// ErrGenerationConflict is returned when a non-directory entry occupies a
	// generation name that rotation needs.
	ErrGenerationConflict = errors.New("generation name is occupied by a non-directory entry")
)

// Rotator owns the naming and renaming of generation directories.
type Rotator struct {
	root      string
	retention int
	log       logger.Logger
}

// NewRotator returns a Rotator for root keeping at most retention completed
// generations. A retention below 1 would delete the freshly produced backup;
// callers are expected to reject it during configuration validation.
func NewRotator(root string, retention int, log logger.Logger) *Rotator {
	return &Rotator{root: root, retention: retention, log: log}
}

// Path returns the directory of generation n.
func (r *Rotator) Path(n int) string {
	return filepath.Join(r.root, strconv.Itoa(n))
}

// StagingPath returns the directory of generation 0.
func (r *Rotator) StagingPath() string {
	return r.Path(Staging)
}

// PrepareStaging makes generation 0 an empty directory. Leftovers from an
// interrupted run are removed first.
func (r *Rotator) PrepareStaging() (string, error) {
	staging := r.StagingPath()

	if _, err := os.Lstat(staging); err == nil {
		r.log.Warn("staging directory exists, recursively removing it", "path", staging)
		if err := RemoveTree(staging); err != nil {
			return "", fmt.Errorf("remove stale staging directory %q: %w", staging, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat staging directory %q: %w", staging, err)
	}

	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", fmt.Errorf("create staging directory %q: %w", staging, err)
	}
	return staging, nil
}

// parseGeneration accepts base-10 non-negative integers without leading zeros.
func parseGeneration(name string) (int, bool) {
	if name == "" || (len(name) > 1 && name[0] == '0') {
		return 0, false
	}
	for _, c := range name {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(name)
	if err != nil {
		return 0, false
	}
	return n, true
}

type entry struct {
	gen   int
	isDir bool
}

// scan lists every entry of the root carrying a generation name.
func (r *Rotator) scan() ([]entry, error) {
	dirEntries, err := os.ReadDir(r.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backups root %q: %w", r.root, err)
	}

	var entries []entry
	for _, de := range dirEntries {
		n, ok := parseGeneration(de.Name())
		if !ok {
			if _, err := strconv.Atoi(de.Name()); err == nil {
				r.log.Warn("ignoring entry with non-canonical generation name",
					"path", filepath.Join(r.root, de.Name()),
				)
			}
			continue
		}
		entries = append(entries, entry{gen: n, isDir: de.IsDir()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].gen < entries[j].gen })
	return entries, nil
}

// Generations returns the existing generation numbers in ascending order,
// including the staging slot if present.
func (r *Rotator) Generations() ([]int, error) {
	entries, err := r.scan()
	if err != nil {
		return nil, err
	}
	gens := make([]int, 0, len(entries))
	for _, e := range entries {
		if e.isDir {
			gens = append(gens, e.gen)
		}
	}
	return gens, nil
}

// Rotate shifts every generation k to k+1, highest first, deleting those that
// would exceed the retention limit. The staged backup becomes generation 1.
func (r *Rotator) Rotate() error {
	entries, err := r.scan()
	if err != nil {
		return err
	}

	dirs := make(map[int]bool, len(entries))
	var gens []int
	for _, e := range entries {
		if e.isDir {
			dirs[e.gen] = true
			gens = append(gens, e.gen)
		}
	}
	if !dirs[Staging] {
		return fmt.Errorf("%w: %s", ErrNoStaging, r.StagingPath())
	}

	// Every rename target must be free or vacated by a directory moving up.
	for _, e := range entries {
		if e.isDir || e.gen == Staging {
			continue
		}
		if dirs[e.gen-1] && e.gen <= r.retention {
			return fmt.Errorf("%w: %s", ErrGenerationConflict, r.Path(e.gen))
		}
	}

	if !contiguous(gens) {
		r.log.Warn("generations are not contiguous, rotating as found",
			"root", r.root,
			"generations", gens,
		)
	}

	for i := len(gens) - 1; i >= 0; i-- {
		k := gens[i]
		if k+1 > r.retention {
			r.log.Info("removing generation beyond retention",
				"path", r.Path(k),
				"retention", r.retention,
			)
			if err := RemoveTree(r.Path(k)); err != nil {
				return fmt.Errorf("remove generation %d: %w", k, err)
			}
			continue
		}
		if err := os.Rename(r.Path(k), r.Path(k+1)); err != nil {
			return fmt.Errorf("rename generation %d to %d: %w", k, k+1, err)
		}
	}
	return nil
}

// contiguous reports whether gens (ascending, starting at 0) has no gaps.
func contiguous(gens []int) bool {
	for i, g := range gens {
		if g != i {
			return false
		}
	}
	return true
}

// RemoveTree deletes path and everything below it. Symbolic links are removed
// as links; their targets are left untouched. A missing path is not an error.
func RemoveTree(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return os.Remove(path)
	}

	children, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := RemoveTree(filepath.Join(path, child.Name())); err != nil {
			return err
		}
	}
	return os.Remove(path)
}
