package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "drivecal/internal/log"
	"drivecal/internal/model"
)

const defaultMaxOccurrences = 500

// rawLayout is the zone-less form handed to the grid normalizer, which
// reads it in the front desk's timezone.
const rawLayout = "2006-01-02T15:04:05"

// Window bounds recurrence expansion.
type Window struct {
	From time.Time
	To   time.Time
	// Location is the timezone the raw timestamps are written in.
	Location *time.Location
	// MaxOccurrences caps instances per recurring booking (0 = default).
	MaxOccurrences int
}

// ExpandResult holds the raw events plus the UIDs whose expansion hit the cap.
type ExpandResult struct {
	Events    []model.RawEvent
	Truncated []string
}

// Expand turns bookings into raw events inside w, applying RRULE, EXDATE
// and RECURRENCE-ID overrides. All-day entries (closures, holidays) are not
// lessons and are skipped.
func Expand(bookings []Booking, w Window) (ExpandResult, error) {
	var res ExpandResult
	if w.To.Before(w.From) {
		return res, errors.New("ics: window end is before start")
	}
	if w.Location == nil {
		w.Location = time.Local
	}
	if w.MaxOccurrences <= 0 {
		w.MaxOccurrences = defaultMaxOccurrences
	}

	overrides := make(map[string][]Booking)
	for _, b := range bookings {
		if b.IsOverride() {
			overrides[b.UID] = append(overrides[b.UID], b)
		}
	}

	for _, b := range bookings {
		if b.IsOverride() || b.AllDay {
			continue
		}
		if b.RawRRule == "" {
			if start, end, src, ok := applyOverride(b, overrides[b.UID], b.Start); ok && overlaps(start, end, w) {
				res.Events = append(res.Events, toRaw(src, b.UID, start, end, w.Location))
			}
			continue
		}

		events, capped := expandRecurring(b, overrides[b.UID], w)
		res.Events = append(res.Events, events...)
		if capped {
			res.Truncated = append(res.Truncated, b.UID)
			appLog.Warn("ics recurrence truncated", "uid", b.UID, "cap", w.MaxOccurrences)
		}
	}
	return res, nil
}

func expandRecurring(b Booking, overrides []Booking, w Window) ([]model.RawEvent, bool) {
	r, err := rrule.StrToRRule(b.RawRRule)
	if err != nil {
		appLog.Warn("ics invalid RRULE; skipping", "uid", b.UID, "rrule", b.RawRRule, "err", err)
		return nil, false
	}
	r.DTStart(b.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range b.ExDates {
		set.ExDate(ex.In(b.Start.Location()))
	}

	dur := b.End.Sub(b.Start)
	// Widen by the duration so instances that started before From but are
	// still running are included.
	from := w.From.Add(-dur).In(b.Start.Location())
	to := w.To.In(b.Start.Location())
	starts := set.Between(from, to, true)

	capped := false
	if len(starts) > w.MaxOccurrences {
		starts = starts[:w.MaxOccurrences]
		capped = true
	}

	out := make([]model.RawEvent, 0, len(starts))
	for _, occ := range starts {
		start, end, src, ok := applyOverride(b, overrides, occ)
		if !ok {
			start, end = occ, occ.Add(dur)
		}
		if !overlaps(start, end, w) {
			continue
		}
		id := b.UID + "/" + occ.UTC().Format("20060102T150405Z")
		out = append(out, toRaw(src, id, start, end, w.Location))
	}
	return out, capped
}

// applyOverride returns the override for the instance starting at
// instanceStart, or the base booking's own times when there is none.
func applyOverride(base Booking, overrides []Booking, instanceStart time.Time) (time.Time, time.Time, Booking, bool) {
	for _, o := range overrides {
		if o.Recurrence != nil && o.Recurrence.Equal(instanceStart) {
			return o.Start, o.End, inherit(base, o), true
		}
	}
	if base.RawRRule == "" {
		return base.Start, base.End, base, true
	}
	return time.Time{}, time.Time{}, base, false
}

// inherit fills fields an override left out from its base booking.
func inherit(base, o Booking) Booking {
	if o.Summary == "" {
		o.Summary = base.Summary
	}
	if o.ResourceID == "" {
		o.ResourceID = base.ResourceID
	}
	if len(o.Categories) == 0 {
		o.Categories = base.Categories
	}
	return o
}

func overlaps(start, end time.Time, w Window) bool {
	return !start.After(w.To) && (end.After(w.From) || !start.Before(w.From))
}

func toRaw(b Booking, id string, start, end time.Time, loc *time.Location) model.RawEvent {
	ev := model.RawEvent{
		Source:     b.Feed.SourceName(),
		ID:         id,
		Title:      b.Summary,
		Start:      start.In(loc).Format(rawLayout),
		End:        end.In(loc).Format(rawLayout),
		ResourceID: b.ResourceID,
	}
	if ev.ResourceID == "" {
		ev.ResourceID = b.Feed.Resource
	}
	if len(b.Categories) > 0 {
		ev.ClassName = append(model.ClassList(nil), b.Categories...)
	}
	return ev
}
