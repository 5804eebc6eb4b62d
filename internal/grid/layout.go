package grid

import (
	"sort"

	"drivecal/internal/model"
)

// Merge concatenates event lists from several sources. When the same
// (source, id) pair shows up again, the first occurrence wins.
func Merge(lists ...[]model.RawEvent) []model.RawEvent {
	type key struct{ source, id string }

	total := 0
	for _, l := range lists {
		total += len(l)
	}
	out := make([]model.RawEvent, 0, total)
	seen := make(map[key]struct{}, total)
	for _, l := range lists {
		for _, ev := range l {
			if ev.ID != "" {
				k := key{ev.Source, ev.ID}
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
			}
			out = append(out, ev)
		}
	}
	return out
}

// Columns lists the grid's resource columns: seats 1..seats first, then any
// other resource found in events (sorted), then fallback if it was used.
func Columns(r *Resolver, seats int, fallback string, events []model.NormalizedEvent) []string {
	cols := make([]string, 0, seats+2)
	known := make(map[string]bool)
	for i := 1; i <= seats; i++ {
		id := r.Seat(i)
		cols = append(cols, id)
		known[id] = true
	}

	var extra []string
	usesFallback := false
	for _, ev := range events {
		switch {
		case ev.ResourceID == fallback:
			usesFallback = true
		case !known[ev.ResourceID]:
			known[ev.ResourceID] = true
			extra = append(extra, ev.ResourceID)
		}
	}
	sort.Strings(extra)
	cols = append(cols, extra...)
	if usesFallback {
		cols = append(cols, fallback)
	}
	return cols
}

// Build lays events out by day and resource column. Events whose date or
// resource is not part of the layout are left out; cells are ordered by
// start time, then ID.
func Build(week model.WeekRange, resources []string, events []model.NormalizedEvent) model.Grid {
	colIndex := make(map[string]int, len(resources))
	for i, id := range resources {
		colIndex[id] = i
	}

	g := model.Grid{
		Week:      week,
		Resources: append([]string(nil), resources...),
		Days:      make([]model.GridDay, len(week.Days)),
	}
	dayIndex := make(map[string]int, len(week.Days))
	for i, d := range week.Days {
		dayIndex[d] = i
		cols := make([]model.GridColumn, len(resources))
		for j, id := range resources {
			cols[j] = model.GridColumn{ResourceID: id, Events: []model.NormalizedEvent{}}
		}
		g.Days[i] = model.GridDay{Date: d, Columns: cols}
	}

	for _, ev := range events {
		di, ok := dayIndex[ev.Date]
		if !ok {
			continue
		}
		ci, ok := colIndex[ev.ResourceID]
		if !ok {
			continue
		}
		col := &g.Days[di].Columns[ci]
		col.Events = append(col.Events, ev)
	}

	for i := range g.Days {
		for j := range g.Days[i].Columns {
			sortEvents(g.Days[i].Columns[j].Events)
		}
	}
	return g
}

// OnDate returns the events dated date, ordered by start time then resource.
func OnDate(events []model.NormalizedEvent, date string) []model.NormalizedEvent {
	out := make([]model.NormalizedEvent, 0)
	for _, ev := range events {
		if ev.Date == date {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ResourceID < out[j].ResourceID
	})
	return out
}

func sortEvents(evs []model.NormalizedEvent) {
	sort.SliceStable(evs, func(i, j int) bool {
		if !evs[i].Start.Equal(evs[j].Start) {
			return evs[i].Start.Before(evs[j].Start)
		}
		return evs[i].ID < evs[j].ID
	})
}
