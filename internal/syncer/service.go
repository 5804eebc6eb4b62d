// Package syncer pulls raw events from every configured source for one
// week and turns them into the seat grid.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"drivecal/internal/grid"
	appLog "drivecal/internal/log"
	"drivecal/internal/model"
)

// ErrAllSourcesFailed is returned when no source produced events; the
// previous snapshot for the week is kept.
var ErrAllSourcesFailed = errors.New("syncer: every source failed")

const (
	resultOK      = "ok"
	resultPartial = "partial"
	resultFailed  = "failed"

	defaultMaxSnapshots = 8
	defaultSyncTimeout  = 3 * time.Minute
)

// Source is a collaborator that lists raw calendar entries for a week.
type Source interface {
	Name() string
	FetchRawEvents(ctx context.Context, week model.WeekRange) ([]model.RawEvent, error)
}

// SourceStatus reports what one source contributed to a sync.
type SourceStatus struct {
	Name  string `json:"name"`
	Raw   int    `json:"raw"`
	Kept  int    `json:"kept"`
	Error string `json:"error,omitempty"`
}

// Snapshot is the result of one sync of one week.
type Snapshot struct {
	Week     model.WeekRange `json:"week"`
	Grid     model.Grid      `json:"grid"`
	Sources  []SourceStatus  `json:"sources"`
	SyncedAt time.Time       `json:"synced_at"`
	Partial  bool            `json:"partial"`

	// Events is the flat normalized list the grid was built from.
	Events []model.NormalizedEvent `json:"-"`
}

type Options struct {
	Location     *time.Location
	WeekStartsOn time.Weekday
	Prefix       string
	Seats        int
	Fallback     string
	Metrics      *Metrics
	// MaxSnapshots bounds the per-week cache (0 = 8 weeks).
	MaxSnapshots int
	// Timeout bounds one shared sync run (0 = 3 minutes).
	Timeout      time.Duration
	Now          func() time.Time
}

type Service struct {
	sources    []Source
	normalizer *grid.Normalizer
	weekStart  time.Weekday
	seats      int
	fallback   string
	metrics    *Metrics
	maxSnaps   int
	timeout    time.Duration
	now        func() time.Time

	flight singleflight.Group

	mu        sync.RWMutex
	snapshots map[string]*Snapshot
}

func NewService(sources []Source, opts Options) *Service {
	if opts.Fallback == "" {
		opts.Fallback = grid.DefaultFallbackResource
	}
	if opts.Seats <= 0 {
		opts.Seats = 9
	}
	if opts.MaxSnapshots <= 0 {
		opts.MaxSnapshots = defaultMaxSnapshots
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultSyncTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		sources:    sources,
		normalizer: grid.NewNormalizer(opts.Location, grid.NewResolver(opts.Prefix)),
		weekStart:  opts.WeekStartsOn,
		seats:      opts.Seats,
		fallback:   opts.Fallback,
		metrics:    opts.Metrics,
		maxSnaps:   opts.MaxSnapshots,
		timeout:    opts.Timeout,
		now:        opts.Now,
		snapshots:  make(map[string]*Snapshot),
	}
}

// Location is the front desk's timezone.
func (s *Service) Location() *time.Location {
	return s.normalizer.Location()
}

// WeekOf is the week containing anchor in the front desk's timezone.
func (s *Service) WeekOf(anchor time.Time) model.WeekRange {
	return grid.WeekOf(anchor.In(s.Location()), s.weekStart)
}

// Sync fetches every source for the week containing anchor and replaces
// the cached snapshot. Concurrent calls for the same week share one run.
// The run is detached from ctx, so a caller that gives up only stops
// waiting; it returns ctx.Err() while the run finishes for the others.
func (s *Service) Sync(ctx context.Context, anchor time.Time) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	week := s.WeekOf(anchor)
	ch := s.flight.DoChan(week.StartDate, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.syncWeek(runCtx, week)
	})

	select {
	case <-ctx.Done():
		appLog.Debug("sync caller gave up", "week", week.StartDate, "err", ctx.Err())
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			appLog.Debug("sync joined in-flight run", "week", week.StartDate)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

// Week returns the cached snapshot for anchor's week when it is younger
// than maxAge, otherwise it syncs. maxAge <= 0 always syncs.
func (s *Service) Week(ctx context.Context, anchor time.Time, maxAge time.Duration) (*Snapshot, error) {
	if maxAge > 0 {
		if snap, ok := s.Cached(anchor); ok && s.now().Sub(snap.SyncedAt) < maxAge {
			return snap, nil
		}
	}
	return s.Sync(ctx, anchor)
}

// Cached returns the last snapshot for anchor's week without syncing.
func (s *Service) Cached(anchor time.Time) (*Snapshot, bool) {
	key := s.WeekOf(anchor).StartDate
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[key]
	return snap, ok
}

func (s *Service) syncWeek(ctx context.Context, week model.WeekRange) (*Snapshot, error) {
	started := s.now()
	appLog.Info("sync start", "week", week.StartDate, "sources", len(s.sources))

	lists := make([][]model.RawEvent, len(s.sources))
	statuses := make([]SourceStatus, len(s.sources))

	// Sources fail independently; the group only waits.
	var g errgroup.Group
	for i, src := range s.sources {
		g.Go(func() error {
			name := src.Name()
			statuses[i].Name = name
			raw, err := src.FetchRawEvents(ctx, week)
			if err != nil {
				statuses[i].Error = err.Error()
				appLog.Error("sync source failed", err, "source", name, "week", week.StartDate)
				return nil
			}
			for j := range raw {
				if raw[j].Source == "" {
					raw[j].Source = name
				}
			}
			lists[i] = raw
			statuses[i].Raw = len(raw)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, st := range statuses {
		if st.Error != "" {
			failed++
		}
	}

	snap := &Snapshot{Week: week, Sources: statuses, SyncedAt: s.now()}
	elapsed := snap.SyncedAt.Sub(started).Seconds()

	if len(s.sources) > 0 && failed == len(s.sources) {
		s.metrics.observe(snap, resultFailed, elapsed)
		return nil, fmt.Errorf("%w (week %s)", ErrAllSourcesFailed, week.StartDate)
	}

	events := s.normalizer.Normalize(grid.Merge(lists...), grid.WeekDates(week), s.fallback)

	kept := make(map[string]int, len(statuses))
	for _, ev := range events {
		kept[ev.Raw.Source]++
	}
	for i := range statuses {
		statuses[i].Kept = kept[statuses[i].Name]
	}

	columns := grid.Columns(s.normalizer.Resolver(), s.seats, s.fallback, events)
	snap.Grid = grid.Build(week, columns, events)
	snap.Events = events
	snap.Partial = failed > 0

	result := resultOK
	if snap.Partial {
		result = resultPartial
	}
	s.metrics.observe(snap, result, elapsed)
	s.store(snap)

	appLog.Info("sync done",
		"week", week.StartDate,
		"result", result,
		"events", len(events),
		"columns", len(columns),
		"elapsed", elapsed,
	)
	return snap, nil
}

func (s *Service) store(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.Week.StartDate] = snap
	if len(s.snapshots) <= s.maxSnaps {
		return
	}
	keys := make([]string, 0, len(s.snapshots))
	for k := range s.snapshots {
		if k != snap.Week.StartDate {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return s.snapshots[keys[i]].SyncedAt.Before(s.snapshots[keys[j]].SyncedAt)
	})
	for _, k := range keys[:len(s.snapshots)-s.maxSnaps] {
		delete(s.snapshots, k)
	}
}
