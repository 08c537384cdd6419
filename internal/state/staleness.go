package state

import (
	"fmt"
	"time"
)

// timestampLayouts are tried in order when parsing a stored timestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// ParseTimestamp parses an ISO 8601 timestamp. Values without an offset are
// interpreted in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	var firstErr error
	for _, layout := range timestampLayouts {
		ts, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return ts, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// LastBackup resolves the instant of the last backup, falling back on the
// tracker's default when the stored value cannot be parsed.
func (t *Tracker) LastBackup(s State, loc *time.Location) (time.Time, error) {
	if s.LastBackupAt != "" {
		ts, err := ParseTimestamp(s.LastBackupAt, loc)
		if err == nil {
			return ts, nil
		}
		t.log.Error("could not parse last backup timestamp, falling back on default",
			"value", s.LastBackupAt,
			"error", err.Error(),
		)
	} else {
		t.log.Warn("state does not contain a last backup timestamp, falling back on default")
	}

	ts, err := ParseTimestamp(t.defaultLastBackupAt, loc)
	if err != nil {
		t.log.Error("could not parse default last backup timestamp, cannot continue",
			"value", t.defaultLastBackupAt,
			"error", err.Error(),
		)
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidDefault, t.defaultLastBackupAt, err)
	}
	return ts, nil
}

// IsDue reports whether at least intervalDays calendar days separate the last
// backup from now, both taken as dates in loc. A non-positive interval is
// always due, even when the last backup lies in the future.
func (t *Tracker) IsDue(s State, now time.Time, intervalDays int, loc *time.Location) (bool, error) {
	last, err := t.LastBackup(s, loc)
	if err != nil {
		return false, err
	}
	if intervalDays <= 0 {
		return true, nil
	}
	elapsed := DaysBetween(last.In(loc), now.In(loc))
	t.log.Debug("checked backup staleness",
		"last_backup_at", last.Format(time.RFC3339),
		"elapsed_days", elapsed,
		"interval_days", intervalDays,
	)
	return elapsed >= int64(intervalDays), nil
}

// DaysBetween returns the number of calendar days from the date of a to the
// date of b, each taken in its own location. It does not overflow for dates
// centuries apart, unlike a time.Duration based difference.
func DaysBetween(a, b time.Time) int64 {
	return civilDay(b.Date()) - civilDay(a.Date())
}

// civilDay converts a proleptic Gregorian date to a day count relative to
// 1970-01-01.
func civilDay(year int, month time.Month, day int) int64 {
	y := int64(year)
	m := int64(month)
	if m <= 2 {
		y--
	}
	era := y / 400
	if y < 0 && y%400 != 0 {
		era--
	}
	yoe := y - era*400
	mp := (m + 9) % 12
	doy := (153*mp+2)/5 + int64(day) - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return era*146097 + doe - 719468
}
