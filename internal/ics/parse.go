package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "drivecal/internal/log"
)

// propResourceID is the custom property booking exports (and our own
// Export) use to carry the seat.
const propResourceID = ical.ComponentProperty("X-RESOURCE-ID")

// Booking is one VEVENT from a booking feed, before recurrence expansion.
type Booking struct {
	Feed Feed

	UID     string
	Seq     int
	Summary string

	Start  time.Time
	End    time.Time
	AllDay bool

	ResourceID string
	Categories []string

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID when this VEVENT overrides one instance
}

// IsOverride reports whether b replaces a single instance of a recurring booking.
func (b Booking) IsOverride() bool {
	return b.Recurrence != nil
}

// ParseICS parses a feed body. A VEVENT that cannot be read is logged and
// skipped; only an unreadable calendar is an error.
func ParseICS(feed Feed, body []byte) ([]Booking, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("ics: empty body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	out := make([]Booking, 0)
	for _, ve := range cal.Events() {
		b, err := parseVEvent(feed, ve)
		if err != nil {
			appLog.Warn("ics vevent skipped", "id", feed.ID, "err", err)
			continue
		}
		out = append(out, b)
	}

	appLog.Debug("ics parse completed", "id", feed.ID, "booking_count", len(out))
	return out, nil
}

func parseVEvent(feed Feed, ve *ical.VEvent) (Booking, error) {
	b := Booking{Feed: feed}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return b, errors.New("missing UID")
	}
	b.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			b.Seq = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		b.Summary = p.Value
	}
	if p := ve.GetProperty(propResourceID); p != nil {
		b.ResourceID = strings.TrimSpace(p.Value)
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		for _, c := range strings.Split(p.Value, ",") {
			if c = strings.TrimSpace(c); c != "" {
				b.Categories = append(b.Categories, c)
			}
		}
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return b, errors.New("missing DTSTART")
	}
	if vs, ok := dtStart.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		b.AllDay = true
	}
	if !strings.Contains(dtStart.Value, "T") {
		b.AllDay = true
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return b, err
	}
	b.Start = start
	if end, err := ve.GetEndAt(); err == nil {
		b.End = end
	} else if b.AllDay {
		b.End = start.AddDate(0, 0, 1)
	} else {
		b.End = start
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		b.RawRRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, tzidOf(p)); err == nil {
				b.ExDates = append(b.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		if t, err := parseICSTime(p.Value, tzidOf(p)); err == nil {
			b.Recurrence = &t
		}
	}

	return b, nil
}

func tzidOf(p *ical.IANAProperty) *time.Location {
	if tz, ok := p.ICalParameters["TZID"]; ok && len(tz) > 0 {
		if loc, err := time.LoadLocation(tz[0]); err == nil {
			return loc
		}
	}
	return time.Local
}

// parseICSTime parses DATE / DATE-TIME / UTC DATE-TIME values found in
// EXDATE and RECURRENCE-ID.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
