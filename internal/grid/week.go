// Package grid turns raw calendar records into the weekly seat grid: week
// arithmetic, resource (seat) resolution, event normalization and layout.
//
// Everything here is pure; callers may share a Normalizer across goroutines.
package grid

import (
	"time"

	"drivecal/internal/model"
)

const dateLayout = "2006-01-02"

// LocalDate formats t's wall-clock calendar date (in t's own location) as
// YYYY-MM-DD.
func LocalDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseLocalDate parses a YYYY-MM-DD string as midnight in loc.
func ParseLocalDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(dateLayout, s, loc)
}

// WeekOf returns the seven dates of the week containing anchor, where the
// week begins on weekStartsOn.
func WeekOf(anchor time.Time, weekStartsOn time.Weekday) model.WeekRange {
	diff := (int(anchor.Weekday()) - int(weekStartsOn) + 7) % 7
	y, m, d := anchor.Date()
	loc := anchor.Location()

	var w model.WeekRange
	for i := range w.Days {
		// time.Date normalizes day overflow, so month/year rollover and
		// DST days come out right.
		w.Days[i] = LocalDate(time.Date(y, m, d-diff+i, 0, 0, 0, 0, loc))
	}
	w.StartDate = w.Days[0]
	w.EndDate = w.Days[6]
	return w
}

// DateSet is a set of local dates used to filter normalized events.
type DateSet map[string]struct{}

func NewDateSet(dates ...string) DateSet {
	s := make(DateSet, len(dates))
	for _, d := range dates {
		s[d] = struct{}{}
	}
	return s
}

// WeekDates is the DateSet of w's seven days.
func WeekDates(w model.WeekRange) DateSet {
	return NewDateSet(w.Days[:]...)
}

func (s DateSet) Has(date string) bool {
	_, ok := s[date]
	return ok
}
