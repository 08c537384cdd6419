package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/kebairia/digibankup/internal/logger"
)

const (
	NameFogImages  = "fog_images"
	NameFogSnapins = "fog_snapins"
	NameFogReports = "fog_reports"
)

// SourceFunc resolves the directory a TreeCopy copies from.
type SourceFunc func() (string, error)

// StaticSource always yields path.
func StaticSource(path string) SourceFunc {
	return func() (string, error) { return path, nil }
}

// TreeCopy recursively copies a directory into the generation.
type TreeCopy struct {
	name       string
	subpath    string
	source     SourceFunc
	minLogSize int64
	log        logger.Logger
}

// NewTreeCopy returns a TreeCopy named name. Files larger than minLogSize
// bytes are logged individually.
func NewTreeCopy(name, subpath string, source SourceFunc, minLogSize int64, log logger.Logger) *TreeCopy {
	return &TreeCopy{
		name:       name,
		subpath:    subpath,
		source:     source,
		minLogSize: minLogSize,
		log:        log,
	}
}

func (t *TreeCopy) Name() string {
	return t.name
}

func (t *TreeCopy) Destination() Destination {
	return Destination{Subpath: t.subpath, IsDir: true}
}

// Produce copies the source tree into dest. Entries that fail to copy do not
// stop the walk; their errors are returned together at the end.
func (t *TreeCopy) Produce(ctx context.Context, dest string) error {
	src, err := t.source()
	if err != nil {
		return err
	}
	// The source root itself may be a link, e.g. /opt/fog/snapins -> /images/snapins.
	if resolved, err := filepath.EvalSymlinks(src); err == nil {
		src = resolved
	}
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("could not copy %s from %s: %w", t.name, src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("could not copy %s: source %s is not a directory", t.name, src)
	}

	var errs []error
	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			errs = append(errs, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		target := filepath.Join(dest, rel)

		if err := t.copyEntry(path, target, d); err != nil {
			errs = append(errs, err)
			if d.IsDir() {
				return fs.SkipDir
			}
		}
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	if len(errs) > 0 {
		return fmt.Errorf("could not copy %s from %s to %s: %w", t.name, src, dest, errors.Join(errs...))
	}
	t.log.Info("tree copied", "component", t.name, "source", src, "path", dest)
	return nil
}

func (t *TreeCopy) copyEntry(path, target string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	switch mode := info.Mode(); {
	case mode.IsDir():
		if err := os.MkdirAll(target, mode.Perm()|0o700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", target, err)
		}
		return nil

	case mode&fs.ModeSymlink != 0:
		link, err := os.Readlink(path)
		if err != nil {
			return fmt.Errorf("failed to read symlink %s: %w", path, err)
		}
		if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to replace %s: %w", target, err)
		}
		if err := os.Symlink(link, target); err != nil {
			return fmt.Errorf("failed to create symlink %s: %w", target, err)
		}
		return nil

	case mode.IsRegular():
		if info.Size() > t.minLogSize {
			t.log.Info("copying file",
				"source", path,
				"target", target,
				"size", humanize.IBytes(uint64(info.Size())),
			)
		}
		return copyFile(path, target, info)

	default:
		t.log.Warn("skipping special file", "path", path, "mode", mode.String())
		return nil
	}
}

// copyFile copies a regular file through a temporary file in the target
// directory and preserves its permissions and modification time.
func copyFile(src, dst string, info fs.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", src, err)
	}
	defer in.Close()

	dstDir := filepath.Dir(dst)
	out, err := os.CreateTemp(dstDir, "digibankup-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dstDir, err)
	}
	defer os.Remove(out.Name())

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy content from %s to %s: %w", src, out.Name(), err)
	}
	if err := out.Chmod(info.Mode().Perm()); err != nil {
		out.Close()
		return fmt.Errorf("failed to set permissions on %s: %w", out.Name(), err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", out.Name(), err)
	}
	if err := os.Rename(out.Name(), dst); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", dst, err)
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("failed to set times on %s: %w", dst, err)
	}
	return nil
}
