// Package state persists the timestamp of the last successful backup and
// decides whether a new backup is due.
package state

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/kebairia/digibankup/internal/logger"
)

const (
	// KeyLastBackupAt holds the RFC 3339 instant of the last successful backup.
	KeyLastBackupAt = "last_backup_at"
	// legacyKeyLastBackupAt is the key written by earlier releases.
	legacyKeyLastBackupAt = "last_datetime"
)

// ErrInvalidDefault is returned when neither the stored timestamp nor the
// configured default can be parsed.
var ErrInvalidDefault = errors.New("default last backup timestamp is invalid")

// Origin describes where a loaded State came from.
type Origin string

const (
	OriginFile    Origin = "file"
	OriginMissing Origin = "missing"
	OriginCorrupt Origin = "corrupt"
)

// State is the persisted backup record.
type State struct {
	LastBackupAt string
	Origin       Origin

	// extra keeps keys we do not interpret so that they survive a save.
	extra map[string]json.RawMessage
}

// Tracker reads and writes the state record at a single path.
type Tracker struct {
	path                string
	defaultLastBackupAt string
	log                 logger.Logger
}

// NewTracker returns a Tracker for the record at path. defaultLastBackupAt is
// used whenever no usable timestamp is available.
func NewTracker(path, defaultLastBackupAt string, log logger.Logger) *Tracker {
	return &Tracker{path: path, defaultLastBackupAt: defaultLastBackupAt, log: log}
}

// Path returns the location of the state record.
func (t *Tracker) Path() string {
	return t.path
}

func (t *Tracker) defaultState(origin Origin) State {
	return State{LastBackupAt: t.defaultLastBackupAt, Origin: origin}
}

// Load reads the state record. A missing or empty record and an unparsable
// record both yield the default state; any other read error is returned.
func (t *Tracker) Load() (State, error) {
	data, err := os.ReadFile(t.path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(bytes.TrimSpace(data)) == 0) {
		t.log.Warn("no info file about previous backups, falling back on defaults",
			"path", t.path,
		)
		return t.defaultState(OriginMissing), nil
	}
	if err != nil {
		t.log.Error("cannot read info file about previous backups",
			"path", t.path,
			"error", err.Error(),
		)
		return State{}, fmt.Errorf("read state %q: %w", t.path, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		if err == nil {
			err = errors.New("record is not a JSON object")
		}
		t.log.Error("could not parse info file about previous backups, falling back on defaults",
			"path", t.path,
			"error", err.Error(),
		)
		return t.defaultState(OriginCorrupt), nil
	}

	s := State{Origin: OriginFile, extra: fields}
	raw, ok := fields[KeyLastBackupAt]
	if !ok {
		raw, ok = fields[legacyKeyLastBackupAt]
	}
	if ok {
		if err := json.Unmarshal(raw, &s.LastBackupAt); err != nil {
			t.log.Error("last backup timestamp is not a string",
				"path", t.path,
				"value", string(raw),
			)
		}
	}
	delete(s.extra, KeyLastBackupAt)
	delete(s.extra, legacyKeyLastBackupAt)
	return s, nil
}

// Save records now as the last successful backup and writes the whole record,
// replacing the previous file atomically. The updated State is returned.
func (t *Tracker) Save(s State, now time.Time, loc *time.Location) (State, error) {
	s.LastBackupAt = now.In(loc).Format(time.RFC3339Nano)

	fields := make(map[string]json.RawMessage, len(s.extra)+1)
	for k, v := range s.extra {
		fields[k] = v
	}
	stamp, err := json.Marshal(s.LastBackupAt)
	if err != nil {
		return s, fmt.Errorf("encode timestamp: %w", err)
	}
	fields[KeyLastBackupAt] = stamp

	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return s, fmt.Errorf("encode state: %w", err)
	}
	if err := writeFileAtomic(t.path, data); err != nil {
		t.log.Error("error while writing info file", "path", t.path, "error", err.Error())
		return s, err
	}
	s.Origin = OriginFile
	return s, nil
}

// writeFileAtomic writes data to a temporary file next to path and renames it
// over path, so a reader never observes a partially written record.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace state file %q: %w", path, err)
	}
	return nil
}
