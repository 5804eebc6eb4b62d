package ics

import (
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"drivecal/internal/model"
)

const productID = "-//drivecal//weekly seat grid//KO"

// Export renders normalized events as a VCALENDAR so the week can be
// subscribed to from a phone calendar. Seats travel in X-RESOURCE-ID and
// LOCATION; UIDs combine source and id so ERP and booking ids never clash.
// Events without an id get a name-based UUID from source, start, seat and
// title instead, numbered when those repeat.
func Export(name string, events []model.NormalizedEvent, now time.Time) []byte {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(name)

	seen := make(map[string]int)
	for _, ev := range events {
		uid := exportUID(ev)
		if n := seen[uid]; n > 0 {
			seen[uid]++
			uid += "-" + strconv.Itoa(n)
		} else {
			seen[uid] = 1
		}
		ve := cal.AddEvent(uid + "@drivecal")
		ve.SetDtStampTime(now)
		ve.SetStartAt(ev.Start)
		ve.SetEndAt(ev.End)
		ve.SetSummary(ev.Title)
		ve.SetLocation(ev.ResourceID)
		ve.AddProperty(propResourceID, ev.ResourceID)
	}
	return []byte(cal.Serialize())
}

func exportUID(ev model.NormalizedEvent) string {
	if ev.ID == "" {
		key := ev.Raw.Source + "|" + ev.Start.UTC().Format(time.RFC3339) + "|" + ev.ResourceID + "|" + ev.Title
		return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
	}
	if ev.Raw.Source != "" {
		return ev.Raw.Source + ":" + ev.ID
	}
	return ev.ID
}
