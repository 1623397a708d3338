package attendance

import (
	"errors"
	"fmt"
	"time"

	"schedoosh/internal/schedule"
)

// dayFormat is the locale-independent date layout baked into occurrence keys.
const dayFormat = "2006-01-02"

// ErrTimeResolution means a class carries an hour/minute that cannot be
// placed on today's date. It is fatal only to that one occurrence.
var ErrTimeResolution = errors.New("could not resolve class start time")

// Occurrence is today's concrete instance of a recurring class. It is derived
// from the template and the current date, never stored on its own.
type Occurrence struct {
	ClassID string
	Start   time.Time
	Key     string
}

// OccurrenceKey derives the stable per-day identity for a class occurrence.
// It depends only on the class id and the local calendar date, so the same
// occurrence always maps to the same key across restarts.
func OccurrenceKey(classID string, day time.Time) string {
	return classID + "::" + day.Format(dayFormat)
}

// KeyDate extracts the encoded date from an occurrence key. ok is false when
// the key does not carry the expected suffix.
func KeyDate(key string) (string, bool) {
	for i := len(key) - 1; i > 0; i-- {
		if key[i] == ':' && key[i-1] == ':' {
			d := key[i+1:]
			if _, err := time.Parse(dayFormat, d); err != nil {
				return "", false
			}
			return d, true
		}
	}
	return "", false
}

// Weekday maps t onto the 1=Sunday .. 7=Saturday convention used by class
// templates.
func Weekday(t time.Time) int {
	return int(t.Weekday()) + 1
}

// ResolveOccurrence computes today's occurrence of c, if any. ok is false when
// the class is disabled or today is not its weekday. An error means the
// template's hour/minute is malformed; callers must surface that rather than
// silently skip.
func ResolveOccurrence(c schedule.Class, now time.Time) (occ Occurrence, ok bool, err error) {
	if !c.Enabled {
		return Occurrence{}, false, nil
	}
	if Weekday(now) != c.Weekday {
		return Occurrence{}, false, nil
	}
	start, err := setTimeOfDay(now, c.Hour, c.Minute)
	if err != nil {
		return Occurrence{}, false, fmt.Errorf("%w: %s %s", ErrTimeResolution, c.Title, c.TimeString())
	}
	return Occurrence{
		ClassID: c.ID,
		Start:   start,
		Key:     OccurrenceKey(c.ID, start),
	}, true, nil
}

func setTimeOfDay(day time.Time, hour, minute int) (time.Time, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, ErrTimeResolution
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, day.Location()), nil
}
