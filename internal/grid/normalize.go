package grid

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"drivecal/internal/model"
)

// DefaultFallbackResource is the column for events without any seat hint.
const DefaultFallbackResource = "unassigned"

// defaultDuration applies when neither an explicit end nor a title range exists.
const defaultDuration = 60 * time.Minute

// Zone-less layouts are read as wall-clock time in the Normalizer's location.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// titleRange matches "HH:MM~HH:MM" (spaces around ~ allowed).
var titleRange = regexp.MustCompile(`(\d{1,2}):(\d{2})\s*~\s*(\d{1,2}):(\d{2})`)

// Normalizer converts raw events to NormalizedEvents for one week.
type Normalizer struct {
	loc      *time.Location
	resolver *Resolver
}

// NewNormalizer returns a Normalizer reading zone-less timestamps in loc
// (time.Local when nil) and resolving seats with resolver (default prefix
// when nil).
func NewNormalizer(loc *time.Location, resolver *Resolver) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	if resolver == nil {
		resolver = NewResolver("")
	}
	return &Normalizer{loc: loc, resolver: resolver}
}

func (n *Normalizer) Location() *time.Location {
	return n.loc
}

func (n *Normalizer) Resolver() *Resolver {
	return n.resolver
}

// Normalize keeps the events that parse and fall on one of days, in input
// order. Malformed records are dropped one at a time; the batch never fails.
//
// A missing end is inferred from a "HH:MM~HH:MM" title range or defaults to
// one hour. An explicit end at or before start rolls over to the next day;
// one that does not parse, or is still before start after the rollover,
// drops the event instead.
func (n *Normalizer) Normalize(raw []model.RawEvent, days DateSet, fallback string) []model.NormalizedEvent {
	out := make([]model.NormalizedEvent, 0, len(raw))
	for _, ev := range raw {
		ne, ok := n.normalizeOne(ev, days, fallback)
		if !ok {
			continue
		}
		out = append(out, ne)
	}
	return out
}

func (n *Normalizer) normalizeOne(ev model.RawEvent, days DateSet, fallback string) (model.NormalizedEvent, bool) {
	if strings.TrimSpace(ev.Start) == "" {
		return model.NormalizedEvent{}, false
	}
	start, err := n.ParseTimestamp(ev.Start)
	if err != nil {
		return model.NormalizedEvent{}, false
	}

	var end time.Time
	if strings.TrimSpace(ev.End) != "" {
		end, err = n.ParseTimestamp(ev.End)
		if err != nil {
			return model.NormalizedEvent{}, false
		}
		if !end.After(start) {
			end = end.AddDate(0, 0, 1)
		}
		if end.Before(start) {
			return model.NormalizedEvent{}, false
		}
	} else if inferred, ok := endFromTitle(ev.Title, start); ok {
		end = inferred
	} else {
		end = start.Add(defaultDuration)
	}

	date := LocalDate(start)
	if !days.Has(date) {
		return model.NormalizedEvent{}, false
	}

	resourceID, ok := n.resolver.Resolve(ev)
	if !ok {
		resourceID = fallback
	}

	return model.NormalizedEvent{
		ID:         ev.ID,
		Title:      ev.Title,
		Start:      start,
		End:        end,
		Date:       date,
		ResourceID: resourceID,
		Raw:        ev.Clone(),
	}, true
}

var errEmptyTimestamp = errors.New("empty timestamp")

// ParseTimestamp parses an ISO-like timestamp. Values with an offset or "Z"
// are converted into the Normalizer's location; zone-less values are read
// as wall-clock time there.
func (n *Normalizer) ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errEmptyTimestamp
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(n.loc), nil
	}
	var lastErr error
	for _, layout := range localLayouts {
		t, err := time.ParseInLocation(layout, s, n.loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// endFromTitle builds an end time on start's calendar day from the second
// half of a "HH:MM~HH:MM" title range, rolling to the next day when the
// result is not after start.
func endFromTitle(title string, start time.Time) (time.Time, bool) {
	m := titleRange.FindStringSubmatch(title)
	if m == nil {
		return time.Time{}, false
	}
	hour, err := strconv.Atoi(m[3])
	if err != nil || hour > 23 {
		return time.Time{}, false
	}
	minute, err := strconv.Atoi(m[4])
	if err != nil || minute > 59 {
		return time.Time{}, false
	}

	y, mo, d := start.Date()
	end := time.Date(y, mo, d, hour, minute, 0, 0, start.Location())
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return end, true
}

// NormalizeEvents normalizes with time.Local and the default seat prefix.
func NormalizeEvents(raw []model.RawEvent, days DateSet, fallback string) []model.NormalizedEvent {
	return NewNormalizer(time.Local, nil).Normalize(raw, days, fallback)
}
