// Package producer implements the routines that populate the sub-backups of
// a generation: the FOG database export, the FOG file trees and the
// inventory backup.
package producer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/kebairia/digibankup/internal/logger"
)

var (
	// ErrSkipped marks a producer that deliberately did nothing.
	ErrSkipped = errors.New("producer skipped")
	// ErrProducerPanic wraps a panic raised inside a producer.
	ErrProducerPanic = errors.New("producer panicked")
)

// Destination describes where a producer writes inside a generation.
type Destination struct {
	// Subpath is relative to the generation directory.
	Subpath string
	// IsDir is true when the producer fills a directory rather than a file.
	IsDir bool
}

// Producer populates one sub-backup.
type Producer interface {
	Name() string
	Destination() Destination
	// Produce writes the sub-backup at dest. For directory destinations dest
	// exists; for file destinations its parent exists.
	Produce(ctx context.Context, dest string) error
}

// Artifacter is implemented by producers whose output ends up somewhere other
// than dest, for example after compression.
type Artifacter interface {
	ArtifactPath(dest string) string
}

// artifactPath returns where p leaves its output for dest.
func artifactPath(p Producer, dest string) string {
	if a, ok := p.(Artifacter); ok {
		return a.ArtifactPath(dest)
	}
	return dest
}

// Status is the outcome of one producer invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result records a single producer invocation.
type Result struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	SizeBytes  int64     `json:"size_bytes"`

	Err error `json:"-"`
}

// Invoke runs p and turns its outcome, including a panic, into a Result.
// Timestamps and durations are taken from now, or time.Now when nil.
func Invoke(ctx context.Context, p Producer, dest string, now func() time.Time, log logger.Logger) (res Result) {
	if now == nil {
		now = time.Now
	}
	start := now()
	res = Result{Name: p.Name(), Path: dest, StartedAt: start}

	log.Info("backup started", "component", p.Name(), "path", dest)

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("%w: %v", ErrProducerPanic, r)
		}
		elapsed := now().Sub(start)
		res.DurationMS = elapsed.Milliseconds()
		switch {
		case res.Err == nil:
			res.Status = StatusSuccess
			res.Path = artifactPath(p, dest)
			res.SizeBytes = sizeOf(res.Path)
			log.Info("backup completed",
				"component", p.Name(),
				"path", res.Path,
				"size_bytes", res.SizeBytes,
				"duration", elapsed.String(),
			)
		case errors.Is(res.Err, ErrSkipped):
			res.Status = StatusSkipped
			res.Error = res.Err.Error()
			log.Warn("backup skipped", "component", p.Name(), "reason", res.Error)
		default:
			res.Status = StatusFailed
			res.Error = res.Err.Error()
			res.SizeBytes = sizeOf(dest)
			log.Error("backup failed",
				"component", p.Name(),
				"path", dest,
				"error", res.Error,
			)
		}
	}()

	res.Err = p.Produce(ctx, dest)
	return res
}

// sizeOf sums the sizes of the regular files at or below path.
func sizeOf(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
