package operations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kebairia/digibankup/internal/producer"
)

// Run performs one backup: check whether a backup is due, fill the staging
// generation, rotate it into place and record the completion time.
//
// Producer failures are reported in the returned Report and never abort the
// run. Any error returned is fatal and leaves the existing generations and
// the state record untouched.
func (om *OperationManager) Run(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: om.now()}

	if err := os.MkdirAll(om.cfg.Paths.Backups, 0o755); err != nil {
		return nil, fmt.Errorf("create backups root: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(om.cfg.Paths.Info), 0o755); err != nil {
		return nil, fmt.Errorf("create info directory: %w", err)
	}

	st, err := om.tracker.Load()
	if err != nil {
		return nil, err
	}

	if om.cfg.Settings.CheckDate {
		due, err := om.tracker.IsDue(st, report.StartedAt, om.cfg.Settings.BackupInterval, om.loc)
		if err != nil {
			return nil, err
		}
		if !due {
			om.log.Info("backup already performed recently, skipping",
				"last_backup_at", st.LastBackupAt,
				"interval_days", om.cfg.Settings.BackupInterval,
			)
			report.Skipped = true
			report.LastBackupAt = st.LastBackupAt
			report.CompletedAt = om.now()
			return report, nil
		}
		om.log.Info("no backup performed recently", "last_backup_at", st.LastBackupAt)
	}

	staging, err := om.rotator.PrepareStaging()
	if err != nil {
		return nil, err
	}
	om.log.Info("backup started", "staging", staging)

	for _, p := range om.producers {
		dest, err := prepareDestination(staging, p.Destination())
		if err != nil {
			return nil, fmt.Errorf("prepare destination for %s: %w", p.Name(), err)
		}
		report.Results = append(report.Results, producer.Invoke(ctx, p, dest, om.now, om.log))
	}

	// A cancelled run must not replace generation 1 with partial data.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("backup interrupted: %w", err)
	}

	report.CompletedAt = om.now()
	if err := report.Write(staging); err != nil {
		return nil, err
	}

	if err := om.rotator.Rotate(); err != nil {
		return nil, err
	}

	st, err = om.tracker.Save(st, report.CompletedAt, om.loc)
	if err != nil {
		return nil, err
	}
	report.LastBackupAt = st.LastBackupAt

	failed := report.Failed()
	for _, res := range failed {
		om.log.Error("component backup failed", "component", res.Name, "error", res.Error)
	}
	om.log.Info("backup finished",
		"path", om.rotator.Path(1),
		"components", len(report.Results),
		"failed", len(failed),
		"last_backup_at", report.LastBackupAt,
	)
	return report, nil
}

// prepareDestination resolves dest inside staging and creates it, or its
// parent when the producer writes a single file.
func prepareDestination(staging string, dest producer.Destination) (string, error) {
	path := filepath.Join(staging, dest.Subpath)
	if path != staging && !strings.HasPrefix(path, staging+string(filepath.Separator)) {
		return "", fmt.Errorf("subpath %q escapes the generation directory", dest.Subpath)
	}
	dir := path
	if !dest.IsDir {
		dir = filepath.Dir(path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
