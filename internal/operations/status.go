package operations

import "github.com/kebairia/digibankup/internal/state"

// GenerationStatus describes one completed generation on disk.
type GenerationStatus struct {
	Number int
	Path   string
	// Report is nil when the generation carries no readable metadata.
	Report *Report
}

// Status is a read-only snapshot of the backups root and the state record.
type Status struct {
	LastBackupAt string
	Origin       state.Origin
	Due          bool
	Generations  []GenerationStatus
}

// Status inspects the state record and the generations without changing
// anything on disk. Due is computed even when date checking is disabled.
func (om *OperationManager) Status() (*Status, error) {
	st, err := om.tracker.Load()
	if err != nil {
		return nil, err
	}
	due, err := om.tracker.IsDue(st, om.now(), om.cfg.Settings.BackupInterval, om.loc)
	if err != nil {
		return nil, err
	}

	out := &Status{LastBackupAt: st.LastBackupAt, Origin: st.Origin, Due: due}

	gens, err := om.rotator.Generations()
	if err != nil {
		return nil, err
	}
	for _, n := range gens {
		if n == 0 {
			continue
		}
		g := GenerationStatus{Number: n, Path: om.rotator.Path(n)}
		var r Report
		if err := r.Load(g.Path); err == nil {
			g.Report = &r
		} else {
			om.log.Debug("generation without metadata", "path", g.Path, "error", err)
		}
		out.Generations = append(out.Generations, g)
	}
	return out, nil
}
