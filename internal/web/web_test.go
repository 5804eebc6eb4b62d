package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drivecal/internal/config"
	"drivecal/internal/erp"
	"drivecal/internal/ics"
	"drivecal/internal/model"
	"drivecal/internal/store"
	"drivecal/internal/syncer"
)

var kst = time.FixedZone("KST", 9*60*60)

// Wed 2025-06-11 10:00 KST
var fixedNow = time.Date(2025, 6, 11, 10, 0, 0, 0, kst)

type staticSource struct {
	events []model.RawEvent
	err    error
}

func (s *staticSource) Name() string { return "erp" }

func (s *staticSource) FetchRawEvents(context.Context, model.WeekRange) ([]model.RawEvent, error) {
	return s.events, s.err
}

type fakeMemos struct {
	err   error
	calls []string
}

func (f *fakeMemos) TryWriteMemo(_ context.Context, eventID, _, text string) error {
	f.calls = append(f.calls, eventID+":"+text)
	return f.err
}

type harness struct {
	srv     *Server
	handler http.Handler
	source  *staticSource
	memos   *fakeMemos
	journal *store.Store
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	src := &staticSource{events: []model.RawEvent{
		{Source: "erp", ID: "1", Title: "Alice 09:00~10:30", Start: "2025-06-11T09:00:00", ResourceID: "dobong-3"},
		{Source: "erp", ID: "2", Title: "Bob", Start: "2025-06-11T08:00:00", ResourceID: "dobong-1"},
		{Source: "erp", ID: "3", Title: "Carol", Start: "2025-06-13T11:00:00"},
	}}
	reg := prometheus.NewRegistry()
	weeks := syncer.NewService([]syncer.Source{src}, syncer.Options{
		Location:     kst,
		WeekStartsOn: time.Monday,
		Prefix:       "dobong",
		Metrics:      syncer.NewMetrics(reg),
		Now:          func() time.Time { return fixedNow },
	})

	journal, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	memos := &fakeMemos{}
	srv := NewServer(cfg, Deps{Weeks: weeks, Memos: memos, Journal: journal, Gatherer: reg})
	srv.now = func() time.Time { return fixedNow }

	return &harness{srv: srv, handler: srv.Handler(), source: src, memos: memos, journal: journal}
}

func (h *harness) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := newHarness(t, nil).do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestWeek(t *testing.T) {
	rec := newHarness(t, nil).do(http.MethodGet, "/api/week?date=2025-06-12", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Week     model.WeekRange       `json:"week"`
		Grid     model.Grid            `json:"grid"`
		Sources  []syncer.SourceStatus `json:"sources"`
		Timezone string                `json:"timezone"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2025-06-09", resp.Week.StartDate)
	assert.Equal(t, "2025-06-15", resp.Week.EndDate)
	assert.Equal(t, "KST", resp.Timezone)
	require.Len(t, resp.Grid.Days, 7)
	assert.Equal(t, []syncer.SourceStatus{{Name: "erp", Raw: 3, Kept: 3}}, resp.Sources)
	assert.Contains(t, resp.Grid.Resources, "unassigned")
}

func TestWeekRejectsBadDate(t *testing.T) {
	rec := newHarness(t, nil).do(http.MethodGet, "/api/week?date=06/12/2025", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "YYYY-MM-DD")
}

func TestWeekAllSourcesFailed(t *testing.T) {
	h := newHarness(t, nil)
	h.source.err = errors.New("login failed")
	rec := h.do(http.MethodGet, "/api/week", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestWeekClientGone(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/week", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Body.String())
}

func TestToday(t *testing.T) {
	rec := newHarness(t, nil).do(http.MethodGet, "/api/today", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp todayResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2025-06-11", resp.Date)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, "2", resp.Events[0].ID)
	assert.Equal(t, "1", resp.Events[1].ID)
}

func TestSyncRequiresPost(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, h.do(http.MethodGet, "/api/sync", "").Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/sync?date=2025-06-12", "").Code)
}

func TestMemoWritesAndJournals(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/api/memo", `{"event_id":"1","date":"2025-06-11","text":"bring license"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"1:bring license"}, h.memos.calls)

	var resp memoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, store.StatusOK, resp.Memo.Status)

	list, err := h.journal.ListByEvent(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "bring license", list[0].Text)
}

func TestMemoBusyIsConflictAndJournaled(t *testing.T) {
	h := newHarness(t, nil)
	h.memos.err = erp.ErrBusy

	rec := h.do(http.MethodPost, "/api/memo", `{"event_id":"1","text":"late"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	list, err := h.journal.ListByEvent(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, store.StatusFailed, list[0].Status)
}

func TestMemoWriteFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.memos.err = erp.ErrModalNotVisible

	rec := h.do(http.MethodPost, "/api/memo", `{"event_id":"1","text":"x"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "memo modal")
}

func TestMemoValidation(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/memo", `{"text":"no id"}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/memo", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/memo", `{"event_id":"1","date":"tomorrow"}`).Code)
	assert.Empty(t, h.memos.calls)
}

func TestMemoWithoutERP(t *testing.T) {
	h := newHarness(t, nil)
	h.srv.deps.Memos = nil
	rec := h.do(http.MethodPost, "/api/memo", `{"event_id":"1","text":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMemosListing(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.journal.Record(ctx, "1", "", "a", nil)
	require.NoError(t, err)
	_, err = h.journal.Record(ctx, "2", "", "b", nil)
	require.NoError(t, err)

	var byEvent []store.Memo
	rec := h.do(http.MethodGet, "/api/memos?event_id=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &byEvent))
	require.Len(t, byEvent, 1)
	assert.Equal(t, "b", byEvent[0].Text)

	var recent []store.Memo
	rec = h.do(http.MethodGet, "/api/memos?limit=10", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recent))
	assert.Len(t, recent, 2)
}

func TestCalendarExport(t *testing.T) {
	rec := newHarness(t, nil).do(http.MethodGet, "/calendar.ics?date=2025-06-11", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))

	bookings, err := ics.ParseICS(ics.Feed{ID: "self"}, rec.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, bookings, 3)
}

func TestMetrics(t *testing.T) {
	h := newHarness(t, nil)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/week", "").Code)

	rec := h.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `drivecal_sync_runs_total{result="ok"} 1`)
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "desk", Password: "s3cret"}
	h := newHarness(t, cfg)

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/health", "").Code)

	rec := h.do(http.MethodGet, "/api/week", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/week", nil)
	req.SetBasicAuth("desk", "s3cret")
	ok := httptest.NewRecorder()
	h.handler.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)
}
