package ics

import (
	"context"
	"fmt"
	"time"

	"drivecal/internal/grid"
	"drivecal/internal/model"
)

// FeedSource adapts one booking feed to the raw-event collaborator shape
// the sync service consumes.
type FeedSource struct {
	fetcher *Fetcher
	feed    Feed
	loc     *time.Location
}

func NewFeedSource(fetcher *Fetcher, feed Feed, loc *time.Location) *FeedSource {
	if loc == nil {
		loc = time.Local
	}
	return &FeedSource{fetcher: fetcher, feed: feed, loc: loc}
}

func (s *FeedSource) Name() string {
	return s.feed.SourceName()
}

// FetchRawEvents downloads, parses and expands the feed for the seven days
// of week.
func (s *FeedSource) FetchRawEvents(ctx context.Context, week model.WeekRange) ([]model.RawEvent, error) {
	from, err := grid.ParseLocalDate(week.StartDate, s.loc)
	if err != nil {
		return nil, fmt.Errorf("ics: week start: %w", err)
	}
	to, err := grid.ParseLocalDate(week.EndDate, s.loc)
	if err != nil {
		return nil, fmt.Errorf("ics: week end: %w", err)
	}
	to = to.AddDate(0, 0, 1).Add(-time.Second)

	res, err := s.fetcher.Fetch(ctx, s.feed)
	if err != nil {
		return nil, err
	}
	bookings, err := ParseICS(s.feed, res.Body)
	if err != nil {
		return nil, fmt.Errorf("ics: parse %s: %w", s.feed.ID, err)
	}
	out, err := Expand(bookings, Window{From: from, To: to, Location: s.loc})
	if err != nil {
		return nil, err
	}
	return out.Events, nil
}
