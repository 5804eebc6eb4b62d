package erp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"drivecal/internal/model"
)

// SourceName tags events scraped from the ERP calendar.
const SourceName = "erp"

// ErrCalendarNotReady means the page had no FullCalendar instance to read,
// usually because the session expired and the ERP redirected to login.
var ErrCalendarNotReady = errors.New("erp: calendar not ready")

// clientEventsScript reads FullCalendar's in-memory events through jQuery.
// Moments are formatted with .format(), which yields zone-less ISO strings
// in the ERP's local time.
const clientEventsScript = `(function (sel) {
  var $ = window.jQuery;
  if (!$) { return null; }
  var $cal = $(sel);
  if (!$cal.length || typeof $cal.fullCalendar !== 'function') { return null; }
  return $cal.fullCalendar('clientEvents').map(function (ev) {
    var id = ev.id != null ? ev.id : ev._id;
    return {
      id: id == null ? '' : String(id),
      title: ev.title || '',
      start: ev.start ? (ev.start.format ? ev.start.format() : String(ev.start)) : '',
      end: ev.end ? (ev.end.format ? ev.end.format() : String(ev.end)) : '',
      className: ev.className || null,
      resourceId: ev.resourceId != null ? String(ev.resourceId) : ''
    };
  });
})(%s)`

const gotoDateScript = `(function (sel, date) {
  var $ = window.jQuery;
  if (!$ || typeof $(sel).fullCalendar !== 'function') { return false; }
  if (date) { $(sel).fullCalendar('gotoDate', date); }
  return true;
})(%s, %s)`

// jQuery.active counts in-flight ajax calls; 0 means the event feed loaded.
const ajaxIdleScript = `!!window.jQuery && window.jQuery.active === 0`

func jsCall(format string, args ...string) (string, error) {
	quoted := make([]any, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", err
		}
		quoted[i] = string(b)
	}
	return fmt.Sprintf(format, quoted...), nil
}

// decodeClientEvents turns the JSON produced by clientEventsScript into raw
// events. Titles are cleaned and Korean date labels rewritten as ISO
// strings; anything else is left for the normalizer to judge.
func decodeClientEvents(data []byte, loc *time.Location) ([]model.RawEvent, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil, ErrCalendarNotReady
	}

	var events []model.RawEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("erp: decode calendar events: %w", err)
	}
	for i := range events {
		events[i].Source = SourceName
		events[i].Title = CleanTitle(events[i].Title)
		events[i].Start = isoFromLabel(events[i].Start, loc)
		events[i].End = isoFromLabel(events[i].End, loc)
	}
	return events, nil
}

func isoFromLabel(s string, loc *time.Location) string {
	if s == "" || !strings.ContainsAny(s, "년월일시오") {
		return s
	}
	t, err := ParseKoreanDateTime(s, loc)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02T15:04:05")
}
