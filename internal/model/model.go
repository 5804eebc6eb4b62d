package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// RawEvent is a calendar entry as handed over by a collaborator (ERP
// calendar, booking feed). Every field is untrusted; empty strings mean
// "absent".
type RawEvent struct {
	// Source names the collaborator that produced this record, e.g. "erp"
	// or "booking:naver". IDs are only unique within one source.
	Source string `json:"source,omitempty"`

	ID    string `json:"id"`
	Title string `json:"title"`

	// Start / End are ISO-like timestamp strings.
	Start string `json:"start"`
	End   string `json:"end,omitempty"`

	ClassName  ClassList `json:"className,omitempty"`
	ResourceID string    `json:"resourceId,omitempty"`
}

// Clone returns a copy that shares no mutable state with r.
func (r RawEvent) Clone() RawEvent {
	out := r
	if r.ClassName != nil {
		out.ClassName = append(ClassList(nil), r.ClassName...)
	}
	return out
}

// ClassList carries CSS class names. FullCalendar emits className either as
// a single string or as an array, so both decode into a list.
type ClassList []string

func (c *ClassList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*c = nil
			return nil
		}
		*c = ClassList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("className: expected string or list of strings: %w", err)
	}
	*c = list
	return nil
}

// NormalizedEvent is a RawEvent after timestamp parsing, week filtering and
// resource resolution. End is never before Start.
type NormalizedEvent struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// Date is the local calendar date (YYYY-MM-DD) of Start; it keys the
	// grid's day column.
	Date string `json:"date"`

	ResourceID string `json:"resource_id"`

	// Raw is a copy of the input record for drill-down in the UI.
	Raw RawEvent `json:"raw"`
}

// Duration is End - Start.
func (e NormalizedEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// WeekRange is seven contiguous local dates. Days[0] == StartDate and
// Days[6] == EndDate.
type WeekRange struct {
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	Days      [7]string `json:"days"`
}

// Contains reports whether date (YYYY-MM-DD) is one of the week's days.
func (w WeekRange) Contains(date string) bool {
	for _, d := range w.Days {
		if d == date {
			return true
		}
	}
	return false
}

// Grid is the weekly seat layout consumed by the UI.
type Grid struct {
	Week      WeekRange `json:"week"`
	Resources []string  `json:"resources"`
	Days      []GridDay `json:"days"`
}

// GridDay holds one column per resource, in Grid.Resources order.
type GridDay struct {
	Date    string       `json:"date"`
	Columns []GridColumn `json:"columns"`
}

type GridColumn struct {
	ResourceID string            `json:"resource_id"`
	Events     []NormalizedEvent `json:"events"`
}
